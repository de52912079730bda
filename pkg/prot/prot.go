// Package prot enumerates the page access rights accepted by memsec.Mprotect.
//
// The portable set (NoAccess through ReadWriteExec) has a native value on
// every supported platform. The extension set (WriteCopy through
// RevertToFileMap) only exists natively on Windows; elsewhere a request for
// one of them is reported as unsupported rather than silently approximated.
package prot

import (
	"fmt"
	"strings"
)

// Prot is a page access mode.
type Prot uint8

// Portable modes. The values double as a read/write/execute bit set:
// bit 0 is read, bit 1 is write, bit 2 is execute.
const (
	NoAccess Prot = iota
	ReadOnly
	WriteOnly
	ReadWrite
	Execute
	ReadExec
	WriteExec
	ReadWriteExec
)

// Platform-only modes.
const (
	WriteCopy Prot = iota + extensionBase
	WriteCopyExec
	Guard
	NoCache
	WriteCombine
	TargetsNoUpdate
	RevertToFileMap
)

const extensionBase = 0x80

var names = map[Prot]string{
	NoAccess:        "no-access",
	ReadOnly:        "read-only",
	WriteOnly:       "write-only",
	ReadWrite:       "read-write",
	Execute:         "execute",
	ReadExec:        "read-exec",
	WriteExec:       "write-exec",
	ReadWriteExec:   "read-write-exec",
	WriteCopy:       "write-copy",
	WriteCopyExec:   "write-copy-exec",
	Guard:           "guard",
	NoCache:         "no-cache",
	WriteCombine:    "write-combine",
	TargetsNoUpdate: "targets-no-update",
	RevertToFileMap: "revert-to-file-map",
}

// Portable returns the modes every platform supports, in bit order.
func Portable() []Prot {
	return []Prot{NoAccess, ReadOnly, WriteOnly, ReadWrite, Execute, ReadExec, WriteExec, ReadWriteExec}
}

// Extensions returns the platform-only modes.
func Extensions() []Prot {
	return []Prot{WriteCopy, WriteCopyExec, Guard, NoCache, WriteCombine, TargetsNoUpdate, RevertToFileMap}
}

// IsPortable reports whether p belongs to the portable set.
func (p Prot) IsPortable() bool {
	return p <= ReadWriteExec
}

// Valid reports whether p is a defined mode.
func (p Prot) Valid() bool {
	_, ok := names[p]
	return ok
}

// Readable, Writable and Executable decompose a portable mode.
// They return false for extension modes.
func (p Prot) Readable() bool   { return p.IsPortable() && p&1 != 0 }
func (p Prot) Writable() bool   { return p.IsPortable() && p&2 != 0 }
func (p Prot) Executable() bool { return p.IsPortable() && p&4 != 0 }

func (p Prot) String() string {
	if name, ok := names[p]; ok {
		return name
	}
	return fmt.Sprintf("prot(%#x)", uint8(p))
}

// Parse maps a mode name as produced by String back to its value.
// Underscores are accepted in place of dashes.
func Parse(s string) (Prot, error) {
	want := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for p, name := range names {
		if name == want {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown protection mode %q", s)
}
