package truncate

// LogLength is the default budget for text copied into log attributes.
const LogLength = 512

var (
	logTruncator  = New(FromMiddle).WithCount()
	tailTruncator = New(FromStart)
)

// ToLength keeps the first maxLen runes of text, ending with "..." when
// anything was cut.
func ToLength(text string, maxLen int) string {
	result, _ := New(FromEnd).Truncate(text, maxLen)
	return result
}

// ForLog bounds text to LogLength runes, keeping both ends and noting how
// much was removed.
func ForLog(text string) string {
	result, _ := logTruncator.Truncate(text, LogLength)
	return result
}

// Tail keeps the last maxLen runes of text.
func Tail(text string, maxLen int) string {
	result, _ := tailTruncator.Truncate(text, maxLen)
	return result
}
