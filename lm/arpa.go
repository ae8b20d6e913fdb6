package lm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/unixpickle/essentials"
)

// LoadARPA reads a language model in ARPA format.
//
// ARPA files store base-10 logarithms; they are converted
// to natural logarithms.
func LoadARPA(r io.Reader) (*NGram, error) {
	model, err := parseARPA(r)
	if err != nil {
		return nil, essentials.AddCtx("load ARPA", err)
	}
	return model, nil
}

func parseARPA(r io.Reader) (*NGram, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var counts []int
	var model *NGram
	inHeader := false
	section := 0
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == `\data\`:
			inHeader = true
		case line == `\end\`:
			if model == nil {
				return nil, errors.New("no n-gram sections")
			}
			return model, nil
		case strings.HasPrefix(line, `\`) && strings.HasSuffix(line, "-grams:"):
			order, err := strconv.Atoi(line[1 : len(line)-len("-grams:")])
			if err != nil || order < 1 || order > len(counts) {
				return nil, fmt.Errorf("line %d: unexpected section %q", lineNum, line)
			}
			if model == nil {
				if len(counts) > MaxOrder {
					return nil, fmt.Errorf("order %d exceeds maximum %d", len(counts), MaxOrder)
				}
				model = NewNGram(len(counts))
			}
			inHeader = false
			section = order
		case inHeader && strings.HasPrefix(line, "ngram "):
			order, count, err := parseCountLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s", lineNum, err)
			}
			for len(counts) < order {
				counts = append(counts, 0)
			}
			counts[order-1] = count
		case section > 0:
			if err := parseGramLine(model, section, line); err != nil {
				return nil, fmt.Errorf("line %d: %s", lineNum, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errors.New("no n-gram sections")
	}
	return model, nil
}

func parseCountLine(line string) (order, count int, err error) {
	parts := strings.SplitN(strings.TrimPrefix(line, "ngram "), "=", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad count line %q", line)
	}
	order, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || order < 1 {
		return 0, 0, fmt.Errorf("bad n-gram order in %q", line)
	}
	count, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad n-gram count in %q", line)
	}
	return
}

func parseGramLine(model *NGram, order int, line string) error {
	fields := strings.Fields(line)
	if len(fields) < order+1 {
		return fmt.Errorf("too few fields for %d-gram: %q", order, line)
	}
	logProb, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("parse log prob: %s", err)
	}
	var logBackoff float64
	if len(fields) > order+1 {
		logBackoff, err = strconv.ParseFloat(fields[order+1], 64)
		if err != nil {
			return fmt.Errorf("parse backoff: %s", err)
		}
	}
	model.Set(fields[1:order+1], logProb*math.Ln10, logBackoff*math.Ln10)
	return nil
}
