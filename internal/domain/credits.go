package domain

// CreditUnitBytes is the output size covered by one credit.
const CreditUnitBytes = 5 * 1024 * 1024

// CreditsForBytes returns ceil(size / 5 MiB), at least 1.
func CreditsForBytes(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return max(1, (size+CreditUnitBytes-1)/CreditUnitBytes)
}
