//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package platform

import (
	"golang.org/x/sys/unix"

	"github.com/oblique/memsec/pkg/prot"
)

var protTable = map[prot.Prot]int{
	prot.NoAccess:      unix.PROT_NONE,
	prot.ReadOnly:      unix.PROT_READ,
	prot.WriteOnly:     unix.PROT_WRITE,
	prot.ReadWrite:     unix.PROT_READ | unix.PROT_WRITE,
	prot.Execute:       unix.PROT_EXEC,
	prot.ReadExec:      unix.PROT_READ | unix.PROT_EXEC,
	prot.WriteExec:     unix.PROT_WRITE | unix.PROT_EXEC,
	prot.ReadWriteExec: unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC,
}

func nativeProt(mode prot.Prot) (int, bool) {
	flags, ok := protTable[mode]
	return flags, ok
}
