package security

import (
	"crypto/sha256"
	"sort"
	"strconv"
	"strings"
)

const (
	EnvKeyPrefix    = "ENCRYPTION_KEY"
	envVersionInfix = "_V"
)

// KeyRing maps a key version to the secret its cipher key is derived from.
type KeyRing map[int]string

func (r KeyRing) Secret(version int) (string, bool) {
	if r == nil {
		return "", false
	}
	secret, ok := r[version]
	if !ok || strings.TrimSpace(secret) == "" {
		return "", false
	}
	return secret, true
}

func (r KeyRing) Versions() []int {
	versions := make([]int, 0, len(r))
	for version, secret := range r {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions
}

func (r KeyRing) Latest() int {
	versions := r.Versions()
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}

// KeyRingFromEnviron reads ENCRYPTION_KEY as version 1 and ENCRYPTION_KEY_V<n>
// as version n from KEY=VALUE pairs such as os.Environ().
func KeyRingFromEnviron(environ []string) KeyRing {
	ring := KeyRing{}
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		version, ok := versionFromEnvName(name)
		if !ok {
			continue
		}
		// an explicit _V1 wins over the bare name.
		if _, exists := ring[version]; exists && name == EnvKeyPrefix {
			continue
		}
		ring[version] = value
	}
	return ring
}

func versionFromEnvName(name string) (int, bool) {
	if name == EnvKeyPrefix {
		return 1, true
	}
	suffix, ok := strings.CutPrefix(name, EnvKeyPrefix+envVersionInfix)
	if !ok {
		return 0, false
	}
	version, err := strconv.Atoi(suffix)
	if err != nil || version <= 0 {
		return 0, false
	}
	return version, true
}

func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
