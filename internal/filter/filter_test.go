package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordContainOrSyntax(t *testing.T) {
	assert.False(t, NotMatchesKeyword("This is a RAW episode", "raw,smackdown", ""))
	assert.True(t, NotMatchesKeyword("This is a NXT episode", "raw,smackdown", ""))
	assert.True(t, NotMatchesKeyword("NXT recap", "raw,smackdown", ""))
}

func TestKeywordAndOrCombination(t *testing.T) {
	contain := "raw+full highlights,smackdown+full highlights"

	assert.False(t, NotMatchesKeyword("RAW full highlights", contain, ""))
	assert.False(t, NotMatchesKeyword("xx xxx smackdown xxxx xx full highlights", contain, ""))

	assert.True(t, NotMatchesKeyword("xxx xx raw xxxx", contain, ""))
	assert.True(t, NotMatchesKeyword("xxxx xx xxxx smackdown xxxx", contain, ""))
	assert.True(t, NotMatchesKeyword("xxxx full highlights xxxx xx", contain, ""))
}

func TestKeywordExclude(t *testing.T) {
	exclude := "reaction+full highlights,rumor"

	assert.True(t, NotMatchesKeyword("wwe reaction and full highlights", "", exclude))
	assert.True(t, NotMatchesKeyword("breaking rumor from today", "", exclude))
	assert.False(t, NotMatchesKeyword("reaction only without highlights", "", exclude))
}

func TestKeywordIgnoresEmptyTokensAndSpaces(t *testing.T) {
	contain := "  raw + full highlights , , smackdown + full highlights  "

	assert.False(t, NotMatchesKeyword("RAW xx full highlights", contain, ""))
	assert.False(t, NotMatchesKeyword("smackdown yy full highlights", contain, ""))
}

func TestKeywordMixedContainAndExclude(t *testing.T) {
	contain := "raw+full highlights,smackdown+full highlights"
	exclude := "rumor,fan cam"

	assert.False(t, NotMatchesKeyword("raw full highlights official", contain, exclude))
	assert.True(t, NotMatchesKeyword("raw full highlights rumor", contain, exclude))
}

func TestKeywordNonASCII(t *testing.T) {
	assert.False(t, NotMatchesKeyword("这是一条 WWE 精彩集锦", "wwe+精彩集锦", ""))
	assert.True(t, NotMatchesKeyword("这是一条 WWE 回放", "wwe+精彩集锦", ""))
}

func TestKeywordBlankExpressionsAreNoConstraint(t *testing.T) {
	assert.False(t, NotMatchesKeyword("anything at all", "", ""))
	assert.False(t, NotMatchesKeyword("anything at all", "   ", "   "))
}

func intPtr(v int) *int { return &v }

func TestDurationBounds(t *testing.T) {
	// 45 minutes within [30, 60]
	assert.False(t, NotMatchesDuration("PT45M", intPtr(30), intPtr(60)))
	// 45 minutes above a 40 minute ceiling
	assert.True(t, NotMatchesDuration("PT45M", nil, intPtr(40)))
	// below the floor
	assert.True(t, NotMatchesDuration("PT10M", intPtr(30), nil))
	// no bounds: never excluded
	assert.False(t, NotMatchesDuration("garbage", nil, nil))
	// unparsable with a bound set
	assert.True(t, NotMatchesDuration("not-a-duration", intPtr(1), nil))
	assert.True(t, NotMatchesDuration("", intPtr(1), nil))
}

func TestParseDurationMinutes(t *testing.T) {
	cases := []struct {
		iso     string
		minutes int64
		ok      bool
	}{
		{"PT45M", 45, true},
		{"PT1H2M3S", 62, true},
		{"PT30S", 0, true},
		{"P1DT1H", 25 * 60, true},
		{"PT", 0, false},
		{"45M", 0, false},
		{"PTXM", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		minutes, ok := ParseDurationMinutes(tc.iso)
		assert.Equal(t, tc.ok, ok, tc.iso)
		if tc.ok {
			assert.Equal(t, tc.minutes, minutes, tc.iso)
		}
	}
}

func TestExcludedCombines(t *testing.T) {
	assert.False(t, Excluded("RAW full highlights", "raw+full highlights,smackdown+full highlights", "", nil, nil, "PT45M"))
	assert.True(t, Excluded("RAW full highlights", "raw+full highlights", "", intPtr(60), nil, "PT45M"))
	assert.True(t, Excluded("rumor mill", "", "rumor", nil, nil, "PT45M"))
}
