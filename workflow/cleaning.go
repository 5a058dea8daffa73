package workflow

import (
	"regexp"
	"strings"
	"time"

	"github.com/dsrph/registry_backend/models"
	"github.com/dsrph/registry_backend/utils"
	"github.com/shopspring/decimal"
)

// FieldCleaner normalizes raw field values before validation. All methods are
// pure computation; cleaning never talks to the database.
type FieldCleaner struct{}

func NewFieldCleaner() *FieldCleaner {
	return &FieldCleaner{}
}

var (
	psnCleanupPattern   = regexp.MustCompile(`[^0-9]`)
	nameCleanupPattern  = regexp.MustCompile(`[^a-zA-ZñÑ\s.\-']`)
	phoneCleanupPattern = regexp.MustCompile(`[^0-9+]`)
	currencyPattern     = regexp.MustCompile(`[₱$,\s]`)
)

// Date layouts accepted from legacy sources, tried in order. Output is always
// ISO (2006-01-02).
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
	"01-02-2006",
}

// CleanPayload applies per-field normalization over a raw payload map and
// returns the cleaned copy. Unknown fields get generic text sanitization.
func (c *FieldCleaner) CleanPayload(raw models.Metadata, dataType models.DataType) models.Metadata {
	cleaned := models.NewMetadata()
	for key, value := range raw {
		s, ok := value.(string)
		if !ok {
			cleaned[key] = value
			continue
		}
		switch normalizeFieldKey(key) {
		case "firstname", "lastname", "middlename", "headofhouseholdname", "name":
			cleaned[key] = c.CleanName(s)
		case "phonenumber", "mobilenumber", "phone":
			cleaned[key] = c.CleanPhoneNumber(s)
		case "psn", "philsysnumber", "headofhouseholdpsn":
			cleaned[key] = c.CleanPSN(s)
		case "dateofbirth", "birthdate", "registrationdate":
			cleaned[key] = c.CleanDate(s)
		case "monthlyincome", "totalhouseholdincome", "totalmonthlyexpenses",
			"foodexpenses", "housingexpenses", "educationexpenses",
			"healthexpenses", "transportationexpenses", "otherexpenses":
			cleaned[key] = c.CleanNumeric(s)
		default:
			cleaned[key] = c.SanitizeText(s)
		}
	}
	return cleaned
}

// CleanName collapses whitespace, strips disallowed characters and
// title-cases the result.
func (c *FieldCleaner) CleanName(s string) string {
	s = utils.StripControlChars(strings.TrimSpace(s))
	s = nameCleanupPattern.ReplaceAllString(s, "")
	s = utils.CollapseSpaces(s)
	return utils.TitleCase(s)
}

// CleanPhoneNumber normalizes to E.164. Philippine conventions are applied
// first (0-prefix and bare 63-prefix), then libphonenumber formats the result;
// numbers it cannot parse come back with only the character cleanup applied.
func (c *FieldCleaner) CleanPhoneNumber(s string) string {
	cleaned := phoneCleanupPattern.ReplaceAllString(s, "")
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "0") {
		cleaned = "+63" + cleaned[1:]
	} else if strings.HasPrefix(cleaned, "63") && !strings.HasPrefix(cleaned, "+63") {
		cleaned = "+" + cleaned
	}
	return utils.FormatPhoneNumberE164(cleaned, utils.CountryCode)
}

// CleanPSN normalizes a PhilSys number to XXXX-XXXX-XXXX when it carries the
// expected 12 digits; otherwise digits-only.
func (c *FieldCleaner) CleanPSN(s string) string {
	digits := psnCleanupPattern.ReplaceAllString(s, "")
	if len(digits) != 12 {
		return digits
	}
	return digits[0:4] + "-" + digits[4:8] + "-" + digits[8:12]
}

// CleanDate parses known legacy layouts and reformats to ISO. Unparseable
// values are returned unchanged so validation can reject them with context.
func (c *FieldCleaner) CleanDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

// CleanNumeric strips currency symbols and separators. Unparseable values are
// returned unchanged for validation to flag.
func (c *FieldCleaner) CleanNumeric(s string) string {
	stripped := currencyPattern.ReplaceAllString(strings.TrimSpace(s), "")
	if stripped == "" {
		return ""
	}
	if d, err := decimal.NewFromString(stripped); err == nil {
		return d.String()
	}
	return s
}

// SanitizeText strips control characters and collapses whitespace.
func (c *FieldCleaner) SanitizeText(s string) string {
	return utils.CollapseSpaces(utils.StripControlChars(strings.TrimSpace(s)))
}

func normalizeFieldKey(key string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(key))
}
