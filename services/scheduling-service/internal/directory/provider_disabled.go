//go:build !protogen

package directory

// NewProvider returns nil when the generated directory client is not
// compiled in; callers treat a nil provider as "no directory check".
func NewProvider(_ string) (Provider, error) {
	return nil, nil
}
