package templates

import (
	"regexp"
	"strconv"
	"time"

	"github.com/hoisie/mustache"
)

// Context is the data a template is rendered with. Empty fields are replaced
// with neutral fallbacks so a message never shows a blank placeholder.
type Context struct {
	InfluencerName  string
	BrandName       string
	InstagramHandle string
	CampaignName    string
	PeriodLabel     string
	Now             time.Time
}

// Rendered is a template filled in for one engagement
type Rendered struct {
	Subject string
	Body    string
}

// plainTag matches {{name}} so text templates can be rendered unescaped.
var plainTag = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

func compile(src, format string) (*mustache.Template, error) {
	if format == FormatText {
		src = plainTag.ReplaceAllString(src, "{{{$1}}}")
	}
	return mustache.ParseString(src)
}

// Vars returns the placeholder values for c.
func (c Context) Vars() map[string]interface{} {
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	return map[string]interface{}{
		"influencer_name":  orDefault(c.InfluencerName, "there"),
		"brand_name":       orDefault(c.BrandName, "Brand"),
		"instagram_handle": orDefault(c.InstagramHandle, "@handle"),
		"campaign_name":    orDefault(c.CampaignName, "Campaign"),
		"period":           orDefault(c.PeriodLabel, "This period"),
		"current_date":     now.Format("1/2/2006"),
		"current_month":    now.Format("January"),
		"current_year":     strconv.Itoa(now.Year()),
	}
}

// Render fills in the subject and body of m.
func Render(m *Manifest, data Context) (Rendered, error) {
	vars := data.Vars()

	subject, err := compile(m.Subject, m.Format)
	if err != nil {
		return Rendered{}, err
	}
	body, err := compile(m.Body, m.Format)
	if err != nil {
		return Rendered{}, err
	}

	return Rendered{
		Subject: subject.Render(vars),
		Body:    body.Render(vars),
	}, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
