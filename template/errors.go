package template

import "fmt"

func errUnterminated(rest string) error {
	return fmt.Errorf("template: unterminated placeholder: %q", rest)
}

func errEmptyName(ph string) error {
	return fmt.Errorf("template: placeholder has no variable name: %q", ph)
}

func errAffixQuote(s string) error {
	return fmt.Errorf("template: malformed affix quoting near: %q", s)
}
