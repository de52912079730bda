//go:build windows

package platform

import (
	"golang.org/x/sys/windows"

	"github.com/oblique/memsec/pkg/prot"
)

const (
	pageTargetsNoUpdate = 0x40000000
	pageRevertToFileMap = 0x80000000
)

// Windows has no write-without-read page mode, so the write-only modes map
// to their readable counterparts.
var protTable = map[prot.Prot]uint32{
	prot.NoAccess:      windows.PAGE_NOACCESS,
	prot.ReadOnly:      windows.PAGE_READONLY,
	prot.WriteOnly:     windows.PAGE_READWRITE,
	prot.ReadWrite:     windows.PAGE_READWRITE,
	prot.Execute:       windows.PAGE_EXECUTE,
	prot.ReadExec:      windows.PAGE_EXECUTE_READ,
	prot.WriteExec:     windows.PAGE_EXECUTE_READWRITE,
	prot.ReadWriteExec: windows.PAGE_EXECUTE_READWRITE,

	prot.WriteCopy:       windows.PAGE_WRITECOPY,
	prot.WriteCopyExec:   windows.PAGE_EXECUTE_WRITECOPY,
	prot.Guard:           windows.PAGE_GUARD,
	prot.NoCache:         windows.PAGE_NOCACHE,
	prot.WriteCombine:    windows.PAGE_WRITECOMBINE,
	prot.TargetsNoUpdate: pageTargetsNoUpdate,
	prot.RevertToFileMap: pageRevertToFileMap,
}

func nativeProt(mode prot.Prot) (uint32, bool) {
	flags, ok := protTable[mode]
	return flags, ok
}
