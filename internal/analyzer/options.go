package analyzer

// MaxImageBytes is the largest photo accepted for analysis (5 MiB)
const MaxImageBytes int64 = 5 << 20

// AnalysisOptions configures how requests are built
type AnalysisOptions struct {
	// Image limits
	MaxImageBytes int64

	// Instruction is the opaque system instruction sent with every request
	Instruction string

	// SniffMediaType detects the type from content when the declared type
	// is missing or generic
	SniffMediaType bool
}

// DefaultOptions returns default analysis options
func DefaultOptions() AnalysisOptions {
	return AnalysisOptions{
		MaxImageBytes:  MaxImageBytes,
		Instruction:    DefaultInstruction,
		SniffMediaType: true,
	}
}

// WithInstruction replaces the built-in instruction. Blank values are ignored.
func (opts AnalysisOptions) WithInstruction(instruction string) AnalysisOptions {
	if instruction != "" {
		opts.Instruction = instruction
	}
	return opts
}

// WithMaxImageBytes sets a custom image size limit
func (opts AnalysisOptions) WithMaxImageBytes(n int64) AnalysisOptions {
	if n > 0 {
		opts.MaxImageBytes = n
	}
	return opts
}

// WithoutSniffing trusts the declared media type as-is
func (opts AnalysisOptions) WithoutSniffing() AnalysisOptions {
	opts.SniffMediaType = false
	return opts
}
