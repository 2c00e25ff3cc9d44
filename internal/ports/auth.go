package ports

type AccessGate interface {
	// Check returns nil for Allow. An empty credential means none was supplied.
	Check(credential string) error
	Required() bool
	Configured() bool
}
