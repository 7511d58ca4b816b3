package logger

// RedactPhone masks a destination phone number for safe logging.
// "+15551234567" → "********4567"
// Numbers of 4 digits or fewer are fully masked.
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	masked := make([]byte, len(phone)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + phone[len(phone)-4:]
}
