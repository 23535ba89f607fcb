package sqlstore

import "github.com/goliatone/go-bulkedit/core"

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.RunLogStore     = (*RunLogStore)(nil)
)
