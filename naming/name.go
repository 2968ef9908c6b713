package naming

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidName is wrapped by every name validation error.
var ErrInvalidName = errors.New("invalid name")

// A Name is a dotted path of elements, for example "Bank.Account[2]".
type Name struct {
	Elements []Element
}

// An Element is one segment of a name. Index holds the bracketed indices, so
// "Grid[0][1]" has Index [0 1].
type Element struct {
	Base  string
	Index []int
}

var (
	elementPattern = regexp.MustCompile(`^([A-Z][A-Za-z0-9]*)((?:\[\d+\])*)$`)
	indexPattern   = regexp.MustCompile(`\[(\d+)\]`)
)

// ParseName splits a name into its elements. Every element must start with a
// capital letter, contain only letters and digits, and may carry any number of
// integer indices.
func ParseName(name string) (Name, error) {
	if name == "" {
		return Name{}, fmt.Errorf("%w: empty", ErrInvalidName)
	}

	segments := strings.Split(name, ".")
	n := Name{Elements: make([]Element, len(segments))}

	for i, seg := range segments {
		e, err := parseElement(seg)
		if err != nil {
			return Name{}, fmt.Errorf("%w %q: %s", ErrInvalidName, name, err)
		}

		n.Elements[i] = e
	}

	return n, nil
}

func parseElement(seg string) (Element, error) {
	if seg == "" {
		return Element{}, errors.New("empty element")
	}

	if seg[0] < 'A' || seg[0] > 'Z' {
		return Element{}, fmt.Errorf("element %q must start with a capital letter", seg)
	}

	m := elementPattern.FindStringSubmatch(seg)
	if m == nil {
		return Element{}, fmt.Errorf("element %q has invalid characters or brackets", seg)
	}

	e := Element{Base: m[1]}

	for _, idx := range indexPattern.FindAllStringSubmatch(m[2], -1) {
		v, err := strconv.Atoi(idx[1])
		if err != nil {
			return Element{}, err
		}

		e.Index = append(e.Index, v)
	}

	return e, nil
}

// NameMustBeValid panics if ParseName rejects the name.
func NameMustBeValid(name string) {
	if _, err := ParseName(name); err != nil {
		panic(err.Error())
	}
}

// BuildName joins a parent name and an element.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex joins a parent name and an indexed element, for example
// "Producer[3]".
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, fmt.Sprintf("%s[%d]", elementName, index))
}
