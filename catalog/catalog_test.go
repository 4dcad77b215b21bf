package catalog_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsantiera/auction"
	"pulsantiera/catalog"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.Replace([]catalog.Player{
		{Name: "Mike Maignan", Role: auction.RolePortiere, Squad: "Milan", FantaAverage: 5.1, Active: true},
		{Name: "Alessandro Bastoni", Role: auction.RoleDifensore, Squad: "Inter", FantaAverage: 6.4, Active: true},
		{Name: "Nicolo Barella", Role: auction.RoleCentrocampista, Squad: "Inter", FantaAverage: 6.9, Active: true},
		{Name: "Lautaro Martinez", Role: auction.RoleAttaccante, Squad: "Inter", FantaAverage: 8.2, Active: true},
		{Name: "Romelu Lukaku", Role: auction.RoleAttaccante, Squad: "Napoli", FantaAverage: 7.5, Active: true},
	})
	return c
}

func TestCatalogMatchIsCaseAndSpaceInsensitive(t *testing.T) {
	c := newTestCatalog(t)

	for _, input := range []string{
		"lautaro martinez",
		"LAUTARO MARTINEZ",
		"  Lautaro   Martinez  ",
	} {
		name, ok := c.Match(input)
		require.True(t, ok, "input %q", input)
		assert.Equal(t, "Lautaro Martinez", name)
	}

	_, ok := c.Match("Lautaro")
	assert.False(t, ok, "partial names must not match")
}

func TestCatalogRoleOf(t *testing.T) {
	c := newTestCatalog(t)

	role, ok := c.RoleOf("mike maignan")
	require.True(t, ok)
	assert.Equal(t, auction.RolePortiere, role)

	_, ok = c.RoleOf("Nobody")
	assert.False(t, ok)
}

func TestCatalogSearchOrdersTakenLast(t *testing.T) {
	c := newTestCatalog(t)

	role := auction.RoleAttaccante
	results := c.Search("", &role, []string{"Lautaro Martinez"})
	require.Len(t, results, 2)

	// 已被買走的排在後面，即使fanta平均較高
	assert.Equal(t, "Romelu Lukaku", results[0].Name)
	assert.False(t, results[0].Taken)
	assert.Equal(t, "Lautaro Martinez", results[1].Name)
	assert.True(t, results[1].Taken)
}

func TestCatalogSearchFiltersByTermAndRole(t *testing.T) {
	c := newTestCatalog(t)

	results := c.Search("inter", nil, nil)
	assert.Empty(t, results, "term matches names, not squads")

	results = c.Search("bar", nil, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Nicolo Barella", results[0].Name)

	role := auction.RoleDifensore
	results = c.Search("", &role, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Alessandro Bastoni", results[0].Name)
}

func TestLoadExtraCSV(t *testing.T) {
	data := strings.Join([]string{
		"Nome,Squadra,Titolare,MediaPrec,FantaMediaPrec",
		"Lautaro Martinez,Inter,si,7.1,\"8,2\"",
		"Mike Maignan,Milan,no,6.0,5.1",
		",ignored,,,",
	}, "\n")

	extra, err := catalog.LoadExtraCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, extra, 2)

	lautaro := extra["Lautaro Martinez"]
	assert.True(t, lautaro.Starter)
	assert.InDelta(t, 7.1, lautaro.LastSeasonAverage, 0.001)
	assert.InDelta(t, 8.2, lautaro.LastSeasonFantaAverage, 0.001)

	maignan := extra["Mike Maignan"]
	assert.False(t, maignan.Starter)
}

func TestLoadExtraCSVRejectsMissingNameColumn(t *testing.T) {
	_, err := catalog.LoadExtraCSV(strings.NewReader("Squadra,Titolare\nInter,si\n"))
	require.Error(t, err)
}

func TestCatalogExtraAppearsInSearch(t *testing.T) {
	c := newTestCatalog(t)
	c.MergeExtra(map[string]catalog.Extra{
		"LAUTARO MARTINEZ": {Starter: true, LastSeasonFantaAverage: 8.2},
	})

	results := c.Search("lautaro", nil, nil)
	require.Len(t, results, 1)
	assert.True(t, results[0].Extra.Starter)
}
