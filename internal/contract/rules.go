package contract

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"museum-api-verifier/internal/envelope"
)

// maxReported caps how many offending elements a detail message lists
const maxReported = 5

// StatusIn accepts any of the given status codes. Endpoints whose upstream
// behavior is inconsistent get the whole documented set rather than a guess.
func StatusIn(codes ...int) Rule {
	sorted := append([]int(nil), codes...)
	sort.Ints(sorted)

	desc := fmt.Sprintf("status is %d", sorted[0])
	if len(sorted) > 1 {
		parts := make([]string, len(sorted))
		for i, c := range sorted {
			parts[i] = strconv.Itoa(c)
		}
		desc = "status is one of {" + strings.Join(parts, ", ") + "}"
	}

	return Rule{
		Description: desc,
		Check: func(in Input) error {
			for _, c := range sorted {
				if in.Envelope.Status == c {
					return nil
				}
			}
			return fmt.Errorf("got status %d", in.Envelope.Status)
		},
	}
}

// StatusClass accepts any status in [lo, hi].
func StatusClass(lo, hi int) Rule {
	return Rule{
		Description: fmt.Sprintf("status is within %d-%d", lo, hi),
		Check: func(in Input) error {
			if in.Envelope.Status < lo || in.Envelope.Status > hi {
				return fmt.Errorf("got status %d", in.Envelope.Status)
			}
			return nil
		},
	}
}

// ContentType requires the requested representation
func ContentType(mediaType string) Rule {
	return Rule{
		Description: "content type is " + mediaType,
		Check: func(in Input) error {
			if got := in.Envelope.MediaType(); got != mediaType {
				return fmt.Errorf("got content type %q", in.Envelope.ContentType)
			}
			if mediaType == "application/json" && !in.Envelope.Valid() {
				return errors.New("body is not valid JSON")
			}
			return nil
		},
	}
}

// FieldPresent requires a non-null value at path
func FieldPresent(path string) Rule {
	return Rule{
		Description: path + " is present and not null",
		Check: func(in Input) error {
			return present(in.Envelope.Get(path), path)
		},
	}
}

// FieldEquals requires the string value at path to equal want exactly
func FieldEquals(path, want string) Rule {
	return Rule{
		Description: fmt.Sprintf("%s equals %q", path, want),
		Check: func(in Input) error {
			return equals(in.Envelope.Get(path), path, want)
		},
	}
}

// FieldEqualsIdentifier requires the value at path to echo the dynamic
// identifier the request was made with.
func FieldEqualsIdentifier(path string) Rule {
	return Rule{
		Description: path + " equals the requested identifier",
		Check: func(in Input) error {
			if in.Identifier == "" {
				return errors.New("case carries no resolved identifier")
			}
			return equals(in.Envelope.Get(path), path, in.Identifier)
		},
	}
}

// FieldAtLeast requires a number at path no smaller than min
func FieldAtLeast(path string, min float64) Rule {
	return Rule{
		Description: fmt.Sprintf("%s >= %v", path, min),
		Check: func(in Input) error {
			n := in.Envelope.Get(path)
			if !n.IsNumber() {
				return fmt.Errorf("%s is not a number (got %s)", path, rawOrMissing(n))
			}
			if n.Float() < min {
				return fmt.Errorf("%s is %v", path, n.Float())
			}
			return nil
		},
	}
}

// NonEmpty requires an array at listPath with at least one element
func NonEmpty(listPath string) Rule {
	return Rule{
		Description: listPath + " is a non-empty array",
		Check: func(in Input) error {
			list, err := array(in.Envelope, listPath)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return fmt.Errorf("%s is empty", listPath)
			}
			return nil
		},
	}
}

// SortedNonEmpty is the sort contract. Ordering cannot be checked without a
// ground-truth oracle, so only a non-empty, error-free result is asserted.
func SortedNonEmpty(listPath, criterion string) Rule {
	r := NonEmpty(listPath)
	r.Description = fmt.Sprintf("sort by %s returns a non-empty %s (order itself not verified)", criterion, listPath)
	return r
}

// LengthExactly bounds the array length by the page size. When countPath is
// set and the upstream total is smaller than n, the total is expected instead.
func LengthExactly(listPath string, n int, countPath string) Rule {
	return PageLength(listPath, n, countPath, "")
}

// PageLength is LengthExactly for a 1-based page selected by pageParam. A
// page past the upstream total may hold only the remainder, or nothing.
func PageLength(listPath string, n int, countPath, pageParam string) Rule {
	return Rule{
		Description: fmt.Sprintf("%s has exactly %d elements", listPath, n),
		Check: func(in Input) error {
			list, err := array(in.Envelope, listPath)
			if err != nil {
				return err
			}
			page, err := pageIndex(in.Params, pageParam)
			if err != nil {
				return err
			}
			want := n
			if countPath != "" {
				if total := in.Envelope.Get(countPath); total.IsNumber() {
					remaining := int(total.Int()) - (page-1)*n
					if remaining < 0 {
						remaining = 0
					}
					if remaining < n {
						want = remaining
					}
				}
			}
			if len(list) != want {
				return fmt.Errorf("got %d elements, want %d", len(list), want)
			}
			return nil
		},
	}
}

func pageIndex(params map[string]interface{}, name string) (int, error) {
	if name == "" {
		return 1, nil
	}
	v, ok := params[name]
	if !ok {
		return 1, nil
	}
	page, err := strconv.Atoi(fmt.Sprint(v))
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page parameter %s=%v is not a 1-based page", name, v)
	}
	return page, nil
}

// EveryElement checks pred against every element of the array at listPath.
// It is universally quantified: one offending element fails the rule.
func EveryElement(listPath, desc string, pred func(envelope.Node) error) Rule {
	return Rule{
		Description: "every element of " + listPath + " " + desc,
		Check: func(in Input) error {
			list, err := array(in.Envelope, listPath)
			if err != nil {
				return err
			}
			var bad []string
			failed := 0
			for i, item := range list {
				if err := pred(item); err != nil {
					failed++
					if len(bad) < maxReported {
						bad = append(bad, fmt.Sprintf("[%d] %v", i, err))
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d elements violate: %s", failed, len(list), strings.Join(bad, "; "))
			}
			return nil
		},
	}
}

// EveryElementEquals is the attribute filter contract
func EveryElementEquals(listPath, field, want string) Rule {
	return EveryElement(listPath, fmt.Sprintf("has %s equal to %q", field, want), func(n envelope.Node) error {
		return equals(n.Get(field), field, want)
	})
}

// EveryElementContains is the locale contract: every link carries the segment
func EveryElementContains(listPath, field, fragment string) Rule {
	return EveryElement(listPath, fmt.Sprintf("has %s containing %q", field, fragment), func(n envelope.Node) error {
		v := n.Get(field)
		if err := present(v, field); err != nil {
			return err
		}
		if !strings.Contains(v.String(), fragment) {
			return fmt.Errorf("%s is %q", field, v.String())
		}
		return nil
	})
}

// EveryElementPresent requires a non-null field on every element
func EveryElementPresent(listPath, field string) Rule {
	return EveryElement(listPath, "has non-null "+field, func(n envelope.Node) error {
		return present(n.Get(field), field)
	})
}

// EveryElementHasKey requires the key on every element; null is allowed.
func EveryElementHasKey(listPath, field string) Rule {
	return EveryElement(listPath, "has key "+field, func(n envelope.Node) error {
		if !n.Get(field).Exists() {
			return fmt.Errorf("%s is missing", field)
		}
		return nil
	})
}

// LeadingElementsDiffer is the non-degenerate pagination contract. It
// compares the identifier field of the first element of this response and
// of the peer response. When the peer page is empty and countPath shows that
// everything fit on the first page, the rule holds vacuously.
func LeadingElementsDiffer(listPath, field, countPath string) Rule {
	return Rule{
		Description: fmt.Sprintf("different pages start with different %s", field),
		Check: func(in Input) error {
			if in.Peer == nil {
				return errors.New("no peer page was fetched")
			}
			first, err := array(in.Envelope, listPath)
			if err != nil {
				return err
			}
			second, err := array(in.Peer, listPath)
			if err != nil {
				return fmt.Errorf("peer page: %w", err)
			}
			if len(first) == 0 || len(second) == 0 {
				if countPath != "" {
					total := in.Envelope.Get(countPath)
					if total.IsNumber() && int(total.Int()) <= len(first)+len(second) {
						return nil
					}
				}
				return fmt.Errorf("insufficient data: pages have %d and %d elements", len(first), len(second))
			}
			a := first[0].Get(field).String()
			b := second[0].Get(field).String()
			if a == "" || b == "" {
				return fmt.Errorf("leading element lacks %s", field)
			}
			if a == b {
				return fmt.Errorf("both pages start with %s=%q (params %s vs %s)", field, a, in.Params, in.PeerParams)
			}
			return nil
		},
	}
}

// BodyContains requires the string at path to contain fragment. An empty
// path searches the raw body.
func BodyContains(path, fragment string) Rule {
	where := path
	if where == "" {
		where = "body"
	}
	return Rule{
		Description: fmt.Sprintf("%s contains %q", where, fragment),
		Check: func(in Input) error {
			text := string(in.Envelope.Body)
			if path != "" {
				text = in.Envelope.Get(path).String()
			}
			if !strings.Contains(text, fragment) {
				return fmt.Errorf("%s is %q", where, truncate(text, 200))
			}
			return nil
		},
	}
}

func array(e *envelope.Envelope, listPath string) ([]envelope.Node, error) {
	n := e.Get(listPath)
	if !n.Exists() {
		return nil, fmt.Errorf("%s is missing", listPath)
	}
	if !n.IsArray() {
		return nil, fmt.Errorf("%s is not an array", listPath)
	}
	return n.Array(), nil
}

func present(n envelope.Node, name string) error {
	switch {
	case !n.Exists():
		return fmt.Errorf("%s is missing", name)
	case n.IsNull():
		return fmt.Errorf("%s is null", name)
	}
	return nil
}

func equals(n envelope.Node, name, want string) error {
	if err := present(n, name); err != nil {
		return err
	}
	if got := n.String(); got != want {
		return fmt.Errorf("%s is %q, want %q", name, got, want)
	}
	return nil
}

func rawOrMissing(n envelope.Node) string {
	if !n.Exists() {
		return "missing"
	}
	return n.Raw()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
