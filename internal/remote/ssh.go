package remote

// SSH reaches machines with ssh and scp.
type SSH struct {
	User   string
	SSHBin string
	SCPBin string
}

func NewSSH(user, sshBin, scpBin string) *SSH {
	if sshBin == "" {
		sshBin = "ssh"
	}
	if scpBin == "" {
		scpBin = "scp"
	}
	return &SSH{User: user, SSHBin: sshBin, SCPBin: scpBin}
}

func (s *SSH) login(host string) string {
	if s.User == "" {
		return host
	}
	return s.User + "@" + host
}

func (s *SSH) ssh(host, command string) Command {
	return Command{Args: []string{s.SSHBin, "-o", "BatchMode=yes", s.login(host), command}}
}

func (s *SSH) Identify(host string) Command {
	return s.ssh(host, "hostname")
}

func (s *SSH) Exec(host, dir, command string) Command {
	if dir != "" {
		command = "cd " + Quote(dir) + " && " + command
	}
	return s.ssh(host, command)
}

func (s *SSH) Mkdir(host, dir string) Command {
	return s.ssh(host, JoinArgs("mkdir", "-p", dir))
}

func (s *SSH) Remove(host, path string) Command {
	return s.ssh(host, JoinArgs("rm", "-rf", path))
}

func (s *SSH) Copy(recursive bool, dst string, srcs ...string) Command {
	args := []string{s.SCPBin, "-q", "-o", "BatchMode=yes"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, srcs...)
	args = append(args, dst)
	return Command{Args: args}
}

func (s *SSH) Location(host, path string) string {
	return s.login(host) + ":" + path
}
