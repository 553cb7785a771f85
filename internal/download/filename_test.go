package download

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	t.Run("keeps plain titles", func(t *testing.T) {
		assert.Equal(t, "Weekly Show Episode 12", SanitizeFileName("Weekly Show Episode 12"))
	})

	t.Run("folds unicode dashes", func(t *testing.T) {
		assert.Equal(t, "Before - After", SanitizeFileName("Before — After"))
		assert.Equal(t, "Before - After", SanitizeFileName("Before – After"))
	})

	t.Run("strips accents via decomposition", func(t *testing.T) {
		assert.Equal(t, "Cafe Edicion Especial", SanitizeFileName("Café Edición Especial"))
	})

	t.Run("replaces unsafe characters", func(t *testing.T) {
		assert.Equal(t, "a_b_c", SanitizeFileName("a/b\\c"))
		assert.Equal(t, "what_ no_", SanitizeFileName("what? no!"))
	})

	t.Run("folds shell-significant punctuation", func(t *testing.T) {
		assert.Equal(t, "rm -rf _ echo _pwned_ _really",
			SanitizeFileName("rm -rf & echo 'pwned' (really)"))
		assert.Equal(t, "a_b_c_d", SanitizeFileName("a&b'c(d)"))
		assert.Equal(t, "backtick_ and _subst", SanitizeFileName("backtick` and $subst"))
	})

	t.Run("collapses repeated separators", func(t *testing.T) {
		assert.Equal(t, "a_b", SanitizeFileName("a///b"))
		assert.Equal(t, "a b", SanitizeFileName("a    b"))
	})

	t.Run("trims leading and trailing junk", func(t *testing.T) {
		assert.Equal(t, "title", SanitizeFileName("  ..title.. "))
	})

	t.Run("empty result falls back to untitled", func(t *testing.T) {
		assert.Equal(t, "untitled", SanitizeFileName("///"))
		assert.Equal(t, "untitled", SanitizeFileName(""))
	})

	t.Run("truncates to 200 bytes with marker", func(t *testing.T) {
		long := strings.Repeat("a", 300)
		got := SanitizeFileName(long)
		assert.LessOrEqual(t, len(got), 200)
		assert.True(t, strings.HasSuffix(got, "..."))
	})

	t.Run("truncation respects rune boundaries", func(t *testing.T) {
		long := strings.Repeat("日", 120) // 3 bytes each
		got := SanitizeFileName(long)
		assert.LessOrEqual(t, len(got), 200)
		assert.True(t, strings.HasSuffix(got, "..."))
		for _, r := range got {
			assert.NotEqual(t, '�', r)
		}
	})
}
