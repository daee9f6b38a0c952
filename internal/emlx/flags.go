package emlx

// Flag names produced by DecodeFlags.
const (
	FlagRead                  = "read"
	FlagDeleted               = "deleted"
	FlagAnswered              = "answered"
	FlagEncrypted             = "encrypted"
	FlagFlagged               = "flagged"
	FlagRecent                = "recent"
	FlagDraft                 = "draft"
	FlagInitial               = "initial"
	FlagForwarded             = "forwarded"
	FlagRedirected            = "redirected"
	FlagAttachmentCount       = "attachment_count"
	FlagPriorityLevel         = "priority_level"
	FlagSigned                = "signed"
	FlagIsJunk                = "is_junk"
	FlagIsNotJunk             = "is_not_junk"
	FlagFontSizeDelta         = "font_size_delta"
	FlagJunkMailLevelRecorded = "junk_mail_level_recorded"
	FlagHighlightTextInTOC    = "highlight_text_in_toc"
)

// flagField is one entry of the packed flag layout. Fields with width 1
// are booleans, wider fields are unsigned counters.
type flagField struct {
	name  string
	width uint
}

// appleMessageFlags is the bit layout of the plist "flags" integer,
// starting at the least significant bit.
// See https://www.jwz.org/blog/2005/07/emlx-flags/
var appleMessageFlags = [...]flagField{
	{FlagRead, 1},
	{FlagDeleted, 1},
	{FlagAnswered, 1},
	{FlagEncrypted, 1},
	{FlagFlagged, 1},
	{FlagRecent, 1},
	{FlagDraft, 1},
	{FlagInitial, 1},
	{FlagForwarded, 1},
	{FlagRedirected, 1},
	{FlagAttachmentCount, 6},
	{FlagPriorityLevel, 7},
	{FlagSigned, 1},
	{FlagIsJunk, 1},
	{FlagIsNotJunk, 1},
	{FlagFontSizeDelta, 3},
	{FlagJunkMailLevelRecorded, 1},
	{FlagHighlightTextInTOC, 1},
}

const (
	// appleUndocumentedBit is always set by Mail.app. It sits above the
	// decoded layout and is forced on before decoding so that its
	// presence never changes the result.
	appleUndocumentedBit uint64 = 1 << 33

	// attachmentCountUnknown shows up in attachment_count when Mail.app
	// has no reliable count; it is never reported.
	attachmentCountUnknown = 63
)

// FlagMap holds decoded message flags. Boolean flags are present with
// value true only when set; counter flags are present as a positive int
// only when non-zero.
type FlagMap map[string]any

// Has reports whether the named flag is set (boolean true or non-zero counter).
func (m FlagMap) Has(name string) bool {
	switch v := m[name].(type) {
	case bool:
		return v
	case int:
		return v > 0
	}
	return false
}

// Int returns the value of a counter flag, or 0 if absent.
func (m FlagMap) Int(name string) int {
	if v, ok := m[name].(int); ok {
		return v
	}
	return 0
}

// FlagNames returns the flag names in bit order.
func FlagNames() []string {
	names := make([]string, len(appleMessageFlags))
	for i, f := range appleMessageFlags {
		names[i] = f.name
	}
	return names
}

// FlagWidth returns the bit width of the named flag, or 0 if the name is
// not part of the layout.
func FlagWidth(name string) uint {
	for _, f := range appleMessageFlags {
		if f.name == name {
			return f.width
		}
	}
	return 0
}

// DecodeFlags unpacks the plist "flags" integer. It never fails: bits
// beyond the known layout are ignored and 0 decodes to an empty map.
func DecodeFlags(raw uint64) FlagMap {
	raw |= appleUndocumentedBit

	result := FlagMap{}
	var shift uint
	for _, f := range appleMessageFlags {
		v := (raw >> shift) & (1<<f.width - 1)
		shift += f.width
		if v == 0 {
			continue
		}
		if f.width == 1 {
			result[f.name] = true
		} else {
			result[f.name] = int(v)
		}
	}

	if result.Int(FlagAttachmentCount) == attachmentCountUnknown {
		delete(result, FlagAttachmentCount)
	}
	return result
}

// EncodeFlags packs flags back into the plist integer layout. Unknown
// names, false, and non-positive values are skipped; counters are
// truncated to their field width. The undocumented bit 33 is not set.
func EncodeFlags(flags FlagMap) uint64 {
	var (
		raw   uint64
		shift uint
	)
	for _, f := range appleMessageFlags {
		mask := uint64(1)<<f.width - 1
		raw |= (flagValue(flags[f.name]) & mask) << shift
		shift += f.width
	}
	return raw
}

// flagValue converts the value types a FlagMap may carry (including those
// produced by JSON or plist decoding) to an unsigned field value.
func flagValue(v any) uint64 {
	switch v := v.(type) {
	case bool:
		if v {
			return 1
		}
	case int:
		if v > 0 {
			return uint64(v)
		}
	case int64:
		if v > 0 {
			return uint64(v)
		}
	case uint64:
		return v
	case float64:
		if v > 0 {
			return uint64(v)
		}
	}
	return 0
}
