package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/example/file-ingestion/modules/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keySet is a KeyProbe over a fixed set of taken keys.
type keySet struct {
	taken  map[string]bool
	probes int
	err    error
}

func (k *keySet) KeyExists(_ context.Context, key string) (bool, error) {
	k.probes++
	if k.err != nil {
		return false, k.err
	}
	return k.taken[key], nil
}

func TestSuffixResolver(t *testing.T) {
	tests := []struct {
		name    string
		taken   []string
		desired string
		want    string
		probes  int
	}{
		{"free name", nil, "a.txt", "a.txt", 1},
		{"first collision", []string{"a.txt"}, "a.txt", "a(1).txt", 2},
		{"skips taken suffixes", []string{"a.txt", "a(1).txt", "a(2).txt"}, "a.txt", "a(3).txt", 4},
		{"no extension", []string{"README"}, "README", "README(1)", 2},
		{"only last extension", []string{"backup.tar.gz"}, "backup.tar.gz", "backup.tar(1).gz", 2},
		{"dot file", []string{".env"}, ".env", ".env(1)", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &keySet{taken: map[string]bool{}}
			for _, k := range tt.taken {
				probe.taken[k] = true
			}

			got, err := NewSuffixResolver(probe).Resolve(context.Background(), tt.desired)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.probes, probe.probes)
		})
	}
}

func TestSuffixResolver_Errors(t *testing.T) {
	probe := &keySet{err: errors.New("db down")}
	_, err := NewSuffixResolver(probe).Resolve(context.Background(), "a.txt")
	assert.EqualError(t, err, "db down")

	r := &SuffixResolver{probe: &keySet{taken: map[string]bool{"a.txt": true, "a(1).txt": true}}, maxAttempts: 2}
	_, err = r.Resolve(context.Background(), "a.txt")
	assert.Error(t, err)
}

func TestTokenResolver(t *testing.T) {
	r := &TokenResolver{newToken: func() string { return "tok" }}
	got, err := r.Resolve(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "tok_a.txt", got)

	a, _ := NewTokenResolver().Resolve(context.Background(), "a.txt")
	b, _ := NewTokenResolver().Resolve(context.Background(), "a.txt")
	assert.NotEqual(t, a, b)
}

func TestResolverFor(t *testing.T) {
	probe := &keySet{}
	assert.IsType(t, &SuffixResolver{}, ResolverFor(storage.KeyStyleReadable, probe))
	assert.IsType(t, &TokenResolver{}, ResolverFor(storage.KeyStyleUnique, probe))
}
