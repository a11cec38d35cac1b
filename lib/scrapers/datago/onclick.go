package datago

import "regexp"

// The portal's download trigger is a scripting attribute of the form
//
//	fileDetailObj.fn_fileDataDown('15104486', 'uddi:4ef3…', '', '1', '1')
//
// i.e. a call with an ordered list of single-quoted arguments. The grammar
// recognized here is exactly that: every single-quoted span, in order;
// nothing outside quotes matters. Arguments may be empty.
var onclickArgRegex = regexp.MustCompile(`'([^']*)'`)

// ParseOnclickArgs extracts the ordered single-quoted argument list out of
// an onclick attribute. Returns nil when the attribute holds no quoted
// arguments.
func ParseOnclickArgs(onclick string) []string {
	matches := onclickArgRegex.FindAllStringSubmatch(onclick, -1)
	if len(matches) == 0 {
		return nil
	}
	args := make([]string, 0, len(matches))
	for _, m := range matches {
		args = append(args, m[1])
	}
	return args
}
