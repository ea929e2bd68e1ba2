package validate

var (
	personalWeights1 = [10]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 1}
	personalWeights2 = [10]int{3, 4, 5, 6, 7, 8, 9, 1, 2, 3}
)

// PersonalCode checks the control digit of an Estonian personal identification code.
func PersonalCode(code string) bool {
	if len(code) != 11 || !IsDigits(code) {
		return false
	}
	mod := personalSum(code, personalWeights1) % 11
	if mod == 10 {
		mod = personalSum(code, personalWeights2) % 11
		if mod == 10 {
			mod = 0
		}
	}
	return int(code[10]-'0') == mod
}

func personalSum(code string, weights [10]int) int {
	total := 0
	for i := 0; i < 10; i++ {
		total += int(code[i]-'0') * weights[i]
	}
	return total
}
