package couponimport

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
)

type mockCreator struct {
	mu      sync.Mutex
	created []coupon.Coupon
	taken   map[string]bool
	err     error
}

func (m *mockCreator) Create(_ context.Context, c coupon.Coupon) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.taken[c.Code] {
		return nil, coupon.ErrCodeTaken
	}
	m.created = append(m.created, c)
	return &c, nil
}

func (m *mockCreator) codes() []string {
	out := make([]string, len(m.created))
	for i, c := range m.created {
		out[i] = c.Code
	}
	sort.Strings(out)
	return out
}

func writeGz(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestImporter_Run(t *testing.T) {
	a := writeGz(t, "a.gz", "alpha", "BETA", "  gamma ", "", "alpha")
	b := writeGz(t, "b.gz", "beta", "delta")
	c := writeGz(t, "c.gz", "Gamma", "beta", "epsilon")

	tests := []struct {
		name        string
		files       []string
		minFiles    int
		taken       map[string]bool
		wantCodes   []string
		wantSkipped int64
	}{
		{
			name:      "distinct codes across files",
			files:     []string{a, b, c},
			minFiles:  1,
			wantCodes: []string{"ALPHA", "BETA", "DELTA", "EPSILON", "GAMMA"},
		},
		{
			name:      "codes in two files",
			files:     []string{a, b, c},
			minFiles:  2,
			wantCodes: []string{"BETA", "GAMMA"},
		},
		{
			name:      "codes in every file",
			files:     []string{a, b, c},
			minFiles:  3,
			wantCodes: []string{"BETA"},
		},
		{
			name:        "existing codes skipped",
			files:       []string{a},
			minFiles:    1,
			taken:       map[string]bool{"ALPHA": true},
			wantCodes:   []string{"BETA", "GAMMA"},
			wantSkipped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &mockCreator{taken: tt.taken}
			im := New(zap.NewNop(), creator, Config{MinFiles: tt.minFiles, Workers: 2, ExpectedCodes: 1000})

			stats, err := im.Run(context.Background(), tt.files)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCodes, creator.codes())
			assert.Equal(t, int64(len(tt.wantCodes)), stats.Created)
			assert.Equal(t, tt.wantSkipped, stats.Skipped)
		})
	}
}

func TestImporter_TemplateApplied(t *testing.T) {
	file := writeGz(t, "codes.gz", "spring")
	pct := decimal.NewFromInt(15)
	maxUsage := 3

	creator := &mockCreator{}
	im := New(zap.NewNop(), creator, Config{Template: coupon.Coupon{
		Code:            "IGNORED",
		Description:     "Spring sale",
		DiscountPercent: &pct,
		MaxUsage:        &maxUsage,
		Enabled:         true,
	}})

	stats, err := im.Run(context.Background(), []string{file})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Scanned)

	require.Len(t, creator.created, 1)
	got := creator.created[0]
	assert.Equal(t, "SPRING", got.Code)
	assert.Equal(t, "Spring sale", got.Description)
	assert.True(t, got.DiscountPercent.Equal(pct))
	assert.Equal(t, 3, *got.MaxUsage)
	assert.True(t, got.Enabled)
}

func TestImporter_Errors(t *testing.T) {
	file := writeGz(t, "codes.gz", "one", "two")
	notGzip := filepath.Join(t.TempDir(), "plain.gz")
	require.NoError(t, os.WriteFile(notGzip, []byte("one\n"), 0o600))

	tests := []struct {
		name    string
		files   []string
		cfg     Config
		creator *mockCreator
		wantErr string
	}{
		{name: "no files", wantErr: "no input files"},
		{
			name:    "missing file",
			files:   []string{filepath.Join(t.TempDir(), "absent.gz")},
			wantErr: "check file",
		},
		{
			name:    "not gzip",
			files:   []string{notGzip},
			wantErr: "create gzip reader",
		},
		{
			name:    "min files above inputs",
			files:   []string{file},
			cfg:     Config{MinFiles: 2},
			wantErr: "min files 2 exceeds the 1 inputs",
		},
		{
			name:    "storage failure",
			files:   []string{file},
			creator: &mockCreator{err: errors.New("disk full")},
			wantErr: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := tt.creator
			if creator == nil {
				creator = &mockCreator{}
			}
			_, err := New(zap.NewNop(), creator, tt.cfg).Run(context.Background(), tt.files)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalize(t *testing.T) {
	code, ok := normalize("  save10 \r")
	assert.True(t, ok)
	assert.Equal(t, "SAVE10", code)

	_, ok = normalize("   ")
	assert.False(t, ok)

	_, ok = normalize(strings.Repeat("x", maxCodeLen+1))
	assert.False(t, ok)
}
