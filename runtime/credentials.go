package runtime

// CredentialProvider resolves a platform name to its decrypted credential
// values, or reports absence. Storage and encryption live behind this
// boundary; the engine only ever sees the resolved values.
type CredentialProvider interface {
	Resolve(platform string) (map[string]any, bool)
}

// StaticCredentials is an in-memory CredentialProvider for tests and
// single-binary deployments.
type StaticCredentials map[string]map[string]any

func (s StaticCredentials) Resolve(platform string) (map[string]any, bool) {
	values, ok := s[platform]
	return values, ok
}

// FetchCredentials resolves every platform a workflow requires into the
// credential namespace a run is seeded with. Values are fetched exactly
// once, at run start, and never refreshed mid-run.
func FetchCredentials(provider CredentialProvider, platforms []string) map[string]any {
	creds := make(map[string]any, len(platforms))
	if provider == nil {
		return creds
	}
	for _, platform := range platforms {
		if values, ok := provider.Resolve(platform); ok {
			creds[platform] = values
		}
	}
	return creds
}
