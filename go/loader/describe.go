package loader

// Summary collects every query result for an image.
type Summary struct {
	Name              string
	Mode              Mode
	Size              int
	CRC               uint32
	Entry             uint32
	TextStart         uint32
	TextSize          uint32
	HasProgramHeaders bool
	HasSectionHeaders bool

	// ELF only
	Machine  uint16
	Programs int
	Sections int

	// PS-EXE only
	ValidHeader bool
	LoadAddress uint32
	FileSize    uint32
	StackBase   uint32
	StackOffset uint32
	Marker      string
}

func Describe(exe Executable) Summary {
	s := Summary{
		Name:              exe.Name(),
		Mode:              exe.Mode(),
		Size:              len(exe.Data()),
		CRC:               exe.CRC(),
		Entry:             exe.EntryPoint(),
		HasProgramHeaders: exe.HasProgramHeaders(),
		HasSectionHeaders: exe.HasSectionHeaders(),
	}
	s.TextStart, s.TextSize = exe.TextRange()
	switch img := exe.(type) {
	case *ElfImage:
		s.Machine = img.Header().Machine
		if p := img.Programs(); p != nil {
			s.Programs = p.Len()
		}
		if t := img.Sections(); t != nil {
			s.Sections = t.Len()
		}
	case *PsxImage:
		if h, err := img.Header(); err == nil {
			s.ValidHeader = true
			s.LoadAddress = h.LoadAddress
			s.FileSize = h.FileSize
			s.StackBase = h.InitialSPBase
			s.StackOffset = h.InitialSPOffset
			s.Marker = h.MarkerText()
		}
	}
	return s
}

// MachineName returns a readable name for an ELF machine number.
func MachineName(machine uint16) string {
	if name, ok := elfMachines[machine]; ok {
		return name
	}
	if machine == 0 {
		return "none"
	}
	return "unknown"
}
