package handler

import (
	"strings"

	"github.com/pkg/errors"
)

// ifCondition is a single condition of an If header list. Exactly one of
// Token and ETag is set.
type ifCondition struct {
	Not   bool
	Token string
	ETag  string
}

type ifList struct {
	// resourceTag is empty for untagged lists
	resourceTag string
	conditions  []ifCondition
}

type ifHeader struct {
	lists []ifList
}

// tokens returns the lock tokens submitted by the header, negated ones
// excluded.
func (h *ifHeader) tokens() []string {
	tokens := make([]string, 0)
	for _, l := range h.lists {
		for _, c := range l.conditions {
			if c.Token != "" && !c.Not {
				tokens = append(tokens, c.Token)
			}
		}
	}

	return tokens
}

func parseIfHeader(raw string) (*ifHeader, error) {
	header := &ifHeader{}
	s := strings.TrimSpace(raw)
	tag := ""

	for s != "" {
		switch s[0] {
		case '<':
			end := strings.IndexByte(s, '>')
			if end < 0 {
				return nil, errors.Wrapf(ErrInvalidHeader, "unterminated resource tag in If header '%s'", raw)
			}

			tag = s[1:end]
			s = strings.TrimSpace(s[end+1:])

			if !strings.HasPrefix(s, "(") {
				return nil, errors.Wrapf(ErrInvalidHeader, "resource tag without list in If header '%s'", raw)
			}

		case '(':
			list, rest, err := parseIfList(s[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "could not parse If header '%s'", raw)
			}

			list.resourceTag = tag
			header.lists = append(header.lists, list)
			s = strings.TrimSpace(rest)

		default:
			return nil, errors.Wrapf(ErrInvalidHeader, "unexpected character '%c' in If header '%s'", s[0], raw)
		}
	}

	if len(header.lists) == 0 {
		return nil, errors.Wrap(ErrInvalidHeader, "empty If header")
	}

	return header, nil
}

func parseIfList(s string) (ifList, string, error) {
	var list ifList

	for {
		s = strings.TrimSpace(s)
		if s == "" {
			return list, "", errors.Wrap(ErrInvalidHeader, "unterminated list")
		}

		if s[0] == ')' {
			if len(list.conditions) == 0 {
				return list, "", errors.Wrap(ErrInvalidHeader, "empty list")
			}

			return list, s[1:], nil
		}

		var cond ifCondition

		if strings.HasPrefix(s, "Not") {
			cond.Not = true
			s = strings.TrimSpace(s[3:])
			if s == "" {
				return list, "", errors.Wrap(ErrInvalidHeader, "dangling Not")
			}
		}

		switch s[0] {
		case '<':
			end := strings.IndexByte(s, '>')
			if end < 0 {
				return list, "", errors.Wrap(ErrInvalidHeader, "unterminated state token")
			}

			cond.Token = s[1:end]
			s = s[end+1:]

		case '[':
			end := strings.IndexByte(s, ']')
			if end < 0 {
				return list, "", errors.Wrap(ErrInvalidHeader, "unterminated entity tag")
			}

			cond.ETag = s[1:end]
			s = s[end+1:]

		default:
			return list, "", errors.Wrapf(ErrInvalidHeader, "unexpected character '%c'", s[0])
		}

		if cond.Token == "" && cond.ETag == "" {
			return list, "", errors.Wrap(ErrInvalidHeader, "empty condition")
		}

		list.conditions = append(list.conditions, cond)
	}
}
