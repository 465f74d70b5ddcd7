package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Columns is the finalized table's column whitelist, in output order.
var Columns = []string{
	"ip", "date", "method", "url", "protocol", "status",
	"is_mobile", "is_tablet", "is_pc", "is_bot",
	"browser", "os",
	"continent", "country", "country_code", "region_name", "city", "lat", "lon",
	"isp", "org", "as", "proxy", "hosting", "query",
}

// DateLayout is how Date is rendered in flat exports. It has no zone because
// the stored instant carries none.
const DateLayout = "2006-01-02 15:04:05"

// Values returns the row's fields in Columns order.
func (r AccessRecord) Values() []any {
	return []any{
		r.IP, r.Date, r.Method, r.URL, r.Protocol, r.Status,
		r.IsMobile, r.IsTablet, r.IsPC, r.IsBot,
		r.Browser, r.OS,
		r.Continent, r.Country, r.CountryCode, r.RegionName, r.City, r.Lat, r.Lon,
		r.ISP, r.Org, r.AS, r.Proxy, r.Hosting, r.Query,
	}
}

// Strings renders Values as text for flat formats such as CSV.
func (r AccessRecord) Strings() []string {
	vals := r.Values()
	out := make([]string, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case string:
			out[i] = x
		case int:
			out[i] = strconv.Itoa(x)
		case bool:
			out[i] = strconv.FormatBool(x)
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case time.Time:
			out[i] = x.Format(DateLayout)
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}

// GeoColumns are the provider's field names, in the order they are requested
// and exported.
var GeoColumns = []string{
	"status", "message", "continent", "continentCode", "country", "countryCode",
	"region", "regionName", "city", "district", "zip", "lat", "lon", "timezone",
	"isp", "org", "as", "asname", "reverse", "mobile", "proxy", "hosting", "query",
}

// Strings renders the metadata in GeoColumns order. Absent fields are empty.
func (m GeoMetadata) Strings() []string {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	num := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	flag := func(p *bool) string {
		if p == nil {
			return ""
		}
		return strconv.FormatBool(*p)
	}
	return []string{
		str(m.Status), str(m.Message), str(m.Continent), str(m.ContinentCode), str(m.Country), str(m.CountryCode),
		str(m.Region), str(m.RegionName), str(m.City), str(m.District), str(m.Zip), num(m.Lat), num(m.Lon), str(m.Timezone),
		str(m.ISP), str(m.Org), str(m.AS), str(m.ASName), str(m.Reverse), flag(m.Mobile), flag(m.Proxy), flag(m.Hosting), m.Query,
	}
}
