package rates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed is returned when input is not a two-level object of numbers.
var ErrMalformed = errors.New("malformed rate table")

// DecodeJSON reads a rate table and returns its quotes in document order.
// Duplicate keys are kept; the graph builder resolves them last-write-wins.
func DecodeJSON(r io.Reader) ([]Quote, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var quotes []Quote
	for dec.More() {
		base, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("%w: rates for %q must be an object", ErrMalformed, base)
		}

		for dec.More() {
			quote, err := readKey(dec)
			if err != nil {
				return nil, err
			}

			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrMalformed, base, quote, err)
			}
			rate, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: %s/%s: rate is not a number", ErrMalformed, base, quote)
			}
			quotes = append(quotes, Quote{Base: base, Quote: quote, Rate: rate})
		}

		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	return quotes, nil
}

// DecodeTable reads a rate table into a map.
func DecodeTable(r io.Reader) (RateTable, error) {
	quotes, err := DecodeJSON(r)
	if err != nil {
		return nil, err
	}
	return FromQuotes(quotes), nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected object key, got %v", ErrMalformed, tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformed, want, tok)
	}
	return nil
}
