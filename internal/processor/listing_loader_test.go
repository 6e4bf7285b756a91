package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStipend(t *testing.T) {
	cases := []struct {
		in     string
		lo, hi int
	}{
		{"₹ 10,000-15,000 /month", 10000, 15000},
		{"5000 /month", 5000, 5000},
		{"Unpaid", 0, 0},
		{"", 0, 0},
		{"Performance based", 0, 0},
		{"2,000 - 5,000 + incentives 1000", 2000, 5000},
	}
	for _, tc := range cases {
		lo, hi := ParseStipend(tc.in)
		assert.Equal(t, tc.lo, lo, tc.in)
		assert.Equal(t, tc.hi, hi, tc.in)
	}
}

func TestParseDurationMonths(t *testing.T) {
	require.NotNil(t, ParseDurationMonths("3 Months"))
	assert.Equal(t, 3, *ParseDurationMonths("3 Months"))
	assert.Equal(t, 6, *ParseDurationMonths("6-8 Weeks"))
	assert.Nil(t, ParseDurationMonths("Flexible"))
}

const listingsCSV = `id,company_name,internship_title,location,stipend,duration,extra
1,Acme,Data Analyst,work from home,"10,000-15,000 /month",3 Months,x
2,Globex,Web Developer,delhi,Unpaid,6 Months,y
3,Initech,,mumbai,5000,2 Months,z
`

func TestReadListingsCSV(t *testing.T) {
	listings, err := ReadListingsCSV(strings.NewReader(listingsCSV), 0)
	require.NoError(t, err)
	require.Len(t, listings, 3)

	first := listings[0]
	assert.Equal(t, "Data Analyst", first.InternshipTitle)
	assert.Equal(t, "Acme", first.CompanyName)
	assert.Equal(t, 10000, *first.StipendMin)
	assert.Equal(t, 15000, *first.StipendMax)
	assert.Equal(t, 12500.0, *first.StipendAvg)
	assert.Equal(t, 3, *first.DurationMonths)

	assert.Equal(t, 0, *listings[1].StipendMax)

	limited, err := ReadListingsCSV(strings.NewReader(listingsCSV), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReadListingsCSV_MissingColumn(t *testing.T) {
	_, err := ReadListingsCSV(strings.NewReader("internship_title,company_name\nA,B\n"), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "location")
}

func TestLoadListings(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	catalog := NewCatalog(env.pipeline, nil, "")

	listings, err := ReadListingsCSV(strings.NewReader(listingsCSV), 0)
	require.NoError(t, err)

	report := LoadListings(context.Background(), catalog, listings)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)

	stored, err := catalog.ListListings(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, l := range stored {
		if l.CompanyName == "Acme" {
			assert.Equal(t, "Remote", l.Location)
			assert.True(t, l.IsRemote)
		}
	}
}
