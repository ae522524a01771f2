package multiboot

// CmdLineVisitor is invoked by VisitCmdLine for each option on the kernel
// command line. Options without a value ("quiet") are reported with the key
// as their value. The visitor returns false to stop the scan.
type CmdLineVisitor func(key, value string) bool

// CmdLine returns the raw kernel command line.
func (i Info) CmdLine() string {
	tag, ok := i.findTag(tagBootCmdLine)
	if !ok {
		return ""
	}
	return cString(tag)
}

// BootLoaderName returns the name reported by the boot loader.
func (i Info) BootLoaderName() string {
	tag, ok := i.findTag(tagBootLoaderName)
	if !ok {
		return ""
	}
	return cString(tag)
}

// VisitCmdLine splits the kernel command line into whitespace separated
// key=value options and invokes visitor for each one.
func (i Info) VisitCmdLine(visitor CmdLineVisitor) {
	cmdLine := i.CmdLine()

	for start := 0; start < len(cmdLine); {
		for start < len(cmdLine) && isSpace(cmdLine[start]) {
			start++
		}

		end := start
		for end < len(cmdLine) && !isSpace(cmdLine[end]) {
			end++
		}

		if start == end {
			break
		}

		key, value := cmdLine[start:end], cmdLine[start:end]
		for sep := start; sep < end; sep++ {
			if cmdLine[sep] == '=' {
				key, value = cmdLine[start:sep], cmdLine[sep+1:end]
				break
			}
		}

		if !visitor(key, value) {
			return
		}

		start = end
	}
}

// CmdLineOption returns the value of the named command line option.
func (i Info) CmdLineOption(name string) (string, bool) {
	var (
		value string
		found bool
	)

	i.VisitCmdLine(func(key, v string) bool {
		if key == name {
			value, found = v, true
			return false
		}
		return true
	})

	return value, found
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n'
}
