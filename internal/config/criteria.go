package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Criteria defines the Ideal Customer Profile the pipeline filters and
// qualifies against. Operators override the defaults with a YAML file so
// thresholds can be tuned without a rebuild.
type Criteria struct {
	Locations LocationCriteria `yaml:"locations"`
	Followers RangeCriteria    `yaml:"followers"`
	// Keywords is the positive-signal vocabulary for the pre-filter:
	// role titles, funding-stage terms, technology/industry terms.
	Keywords []string `yaml:"keywords"`
	// Titles are decision-maker role patterns used in the qualifier
	// prompt and in people-search lookups.
	Titles         []string      `yaml:"titles"`
	FundingStages  []string      `yaml:"funding_stages"`
	DisallowedOrgs []string      `yaml:"disallowed_orgs"`
	CompanySize    RangeCriteria `yaml:"company_size"`
	Region         string        `yaml:"region"`
}

// LocationCriteria drives the pre-filter location check. Deny markers are
// evaluated before Allow markers: a string containing both is rejected.
type LocationCriteria struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// RangeCriteria is an inclusive numeric band.
type RangeCriteria struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Contains reports whether n falls inside the band.
func (r RangeCriteria) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// DefaultCriteria returns the compiled-in ICP used when no criteria file is
// present.
func DefaultCriteria() *Criteria {
	return &Criteria{
		Locations: LocationCriteria{
			Allow: []string{
				"united states", "usa", "u.s.", "us", "america",
				"new york", "nyc", "san francisco", "sf", "bay area",
				"los angeles", "austin", "boston", "seattle", "chicago",
				"denver", "miami", "atlanta", "dallas", "houston",
				"california", "texas", "florida", "washington", "colorado",
				"massachusetts", "georgia", "illinois",
				"ca", "ny", "tx", "fl", "wa", "ma", "co", "ga", "il",
			},
			Deny: []string{
				"united kingdom", "uk", "london", "england", "scotland",
				"canada", "toronto", "vancouver", "montreal",
				"india", "bangalore", "bengaluru", "mumbai", "delhi",
				"australia", "sydney", "melbourne",
				"germany", "berlin", "munich", "france", "paris",
				"netherlands", "amsterdam", "spain", "madrid", "barcelona",
				"brazil", "sao paulo", "singapore", "dubai", "uae",
				"nigeria", "lagos", "pakistan", "philippines", "indonesia",
				"europe", "emea", "apac", "latam", "worldwide", "global",
			},
		},
		Followers: RangeCriteria{Min: 100, Max: 5000},
		Keywords: []string{
			"founder", "co-founder", "cofounder", "ceo", "cto", "coo", "cmo",
			"owner", "president", "managing director", "partner",
			"vp", "vice president", "head of", "director",
			"growth", "marketing", "sales", "revenue", "demand gen",
			"saas", "b2b", "startup", "agency", "software", "ai", "fintech",
			"seed", "series a", "series b", "bootstrapped", "funded",
		},
		Titles: []string{
			"CEO", "Founder", "Co-Founder", "Owner", "President",
			"Managing Director", "Managing Partner", "Principal",
		},
		FundingStages:  []string{"seed", "series a", "series b"},
		DisallowedOrgs: []string{"Google", "Meta", "Amazon", "Apple", "Microsoft", "IBM", "Oracle", "Salesforce", "Accenture", "Deloitte", "McKinsey"},
		CompanySize:    RangeCriteria{Min: 11, Max: 200},
		Region:         "United States",
	}
}

// LoadCriteria reads ICP criteria from a YAML file. A missing file is not an
// error: the defaults apply. Fields left empty in the file fall back to the
// defaults field-by-field so a partial override stays safe.
func LoadCriteria(path string) (*Criteria, error) {
	def := DefaultCriteria()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		return nil, eris.Wrapf(err, "config: read criteria %s", path)
	}

	var c Criteria
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "config: parse criteria")
	}

	if len(c.Locations.Allow) == 0 {
		c.Locations.Allow = def.Locations.Allow
	}
	if len(c.Locations.Deny) == 0 {
		c.Locations.Deny = def.Locations.Deny
	}
	if c.Followers.Min == 0 && c.Followers.Max == 0 {
		c.Followers = def.Followers
	}
	if len(c.Keywords) == 0 {
		c.Keywords = def.Keywords
	}
	if len(c.Titles) == 0 {
		c.Titles = def.Titles
	}
	if len(c.FundingStages) == 0 {
		c.FundingStages = def.FundingStages
	}
	if len(c.DisallowedOrgs) == 0 {
		c.DisallowedOrgs = def.DisallowedOrgs
	}
	if c.CompanySize.Min == 0 && c.CompanySize.Max == 0 {
		c.CompanySize = def.CompanySize
	}
	if c.Region == "" {
		c.Region = def.Region
	}

	return &c, nil
}
