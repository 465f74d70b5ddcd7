package domain

import "time"

// LogRecord is one request parsed out of an access log line.
// Timestamp is populated by the normalizer; until then only RawTimestamp is set.
type LogRecord struct {
	Address      string    `json:"ip"`
	RawTimestamp string    `json:"raw_date,omitempty"`
	Timestamp    time.Time `json:"date"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	Protocol     string    `json:"protocol"`
	Status       int       `json:"status"`
	Size         int64     `json:"size"`
	UserAgent    string    `json:"user_agent,omitempty"`

	// Line is the 1-based position of the source line in its window. It is
	// kept for audit logging and is not part of record identity.
	Line int `json:"-"`
}

// ClientDescriptor is what a user-agent string resolves to.
type ClientDescriptor struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
	Device         string `json:"device"`
	IsMobile       bool   `json:"is_mobile"`
	IsTablet       bool   `json:"is_tablet"`
	IsPC           bool   `json:"is_pc"`
	IsBot          bool   `json:"is_bot"`
}

// UnknownFamily is the family reported for anything the classifier cannot name.
const UnknownFamily = "Other"

// UnknownClient is the descriptor used when a user agent cannot be classified.
func UnknownClient() ClientDescriptor {
	return ClientDescriptor{
		Browser: UnknownFamily,
		OS:      UnknownFamily,
		Device:  UnknownFamily,
	}
}

// ClientRecord is a LogRecord whose raw user agent has been replaced by its
// descriptor.
type ClientRecord struct {
	Address   string
	Timestamp time.Time
	Method    string
	URL       string
	Protocol  string
	Status    int
	Size      int64
	Client    ClientDescriptor
}

// GeoMetadata mirrors the geolocation provider's response for one address.
// Pointer fields are nil when the provider omitted them.
type GeoMetadata struct {
	Status        *string  `json:"status,omitempty"`
	Message       *string  `json:"message,omitempty"`
	Continent     *string  `json:"continent,omitempty"`
	ContinentCode *string  `json:"continentCode,omitempty"`
	Country       *string  `json:"country,omitempty"`
	CountryCode   *string  `json:"countryCode,omitempty"`
	Region        *string  `json:"region,omitempty"`
	RegionName    *string  `json:"regionName,omitempty"`
	City          *string  `json:"city,omitempty"`
	District      *string  `json:"district,omitempty"`
	Zip           *string  `json:"zip,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	Timezone      *string  `json:"timezone,omitempty"`
	ISP           *string  `json:"isp,omitempty"`
	Org           *string  `json:"org,omitempty"`
	AS            *string  `json:"as,omitempty"`
	ASName        *string  `json:"asname,omitempty"`
	Reverse       *string  `json:"reverse,omitempty"`
	Mobile        *bool    `json:"mobile,omitempty"`
	Proxy         *bool    `json:"proxy,omitempty"`
	Hosting       *bool    `json:"hosting,omitempty"`
	Query         string   `json:"query"`
}

// AccessRecord is a row of the finalized table.
type AccessRecord struct {
	IP          string    `json:"ip"`
	Date        time.Time `json:"date"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	Protocol    string    `json:"protocol"`
	Status      int       `json:"status"`
	IsMobile    bool      `json:"is_mobile"`
	IsTablet    bool      `json:"is_tablet"`
	IsPC        bool      `json:"is_pc"`
	IsBot       bool      `json:"is_bot"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	Continent   string    `json:"continent"`
	Country     string    `json:"country"`
	CountryCode string    `json:"country_code"`
	RegionName  string    `json:"region_name"`
	City        string    `json:"city"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	ISP         string    `json:"isp"`
	Org         string    `json:"org"`
	AS          string    `json:"as"`
	Proxy       bool      `json:"proxy"`
	Hosting     bool      `json:"hosting"`
	Query       string    `json:"query"`
}

// RunInfo identifies one pipeline execution.
type RunInfo struct {
	ID        string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Source    string    `json:"source"`
}

// RunStats counts what each stage kept, dropped or defaulted.
type RunStats struct {
	LinesSeen         int `json:"lines_seen"`
	LinesSkipped      int `json:"lines_skipped"`
	ParseErrors       int `json:"parse_errors"`
	FormatErrors      int `json:"format_errors"`
	Duplicates        int `json:"duplicates"`
	EmptyURLs         int `json:"empty_urls"`
	DistinctAddresses int `json:"distinct_addresses"`
	LookupsOK         int `json:"lookups_ok"`
	LookupsFailed     int `json:"lookups_failed"`
	LookupsCached     int `json:"lookups_cached"`
	LookupsAbandoned  int `json:"lookups_abandoned"`
	DroppedNoGeo      int `json:"dropped_no_geo"`
	OrgDefaulted      int `json:"org_defaulted"`
	Finalized         int `json:"finalized"`
}
