package internal

// DefaultReadOnlyPaths are readable after applying Landlock, besides those
// configured. Missing paths are skipped.
var DefaultReadOnlyPaths = []string{"/etc", "/usr", "/lib", "/lib64"}

// HardeningOpts describes the restrictions applied after dropping privileges.
type HardeningOpts struct {
	Landlock bool
	Seccomp  bool

	ReadOnly  []string
	ReadWrite []string
}

// NewHardeningOpts based on the Config.
func NewHardeningOpts(conf Config) *HardeningOpts {
	opts := &HardeningOpts{
		Landlock: conf.Hardening.Landlock,
		Seccomp:  conf.Hardening.Seccomp,
		ReadOnly: append(append([]string{}, DefaultReadOnlyPaths...), conf.Hardening.ReadOnly...),
	}
	if conf.Audit.Path != "" {
		opts.ReadWrite = append(opts.ReadWrite, conf.Audit.Path)
	}
	return opts
}

// Enabled reports if any hardening was requested.
func (opts *HardeningOpts) Enabled() bool {
	return opts.Landlock || opts.Seccomp
}
