package util

import (
	"fmt"
	"runtime"
	"strconv"

	_ "go.uber.org/automaxprocs"
)

const concurrencyAuto = "auto"

// ConcurrencyLimit caps how many connections are in flight at once. Zero
// means no limit. It can be set from "auto", which resolves to GOMAXPROCS.
type ConcurrencyLimit int

func GoMaxProcsConcurrencyLimit() ConcurrencyLimit {
	return ConcurrencyLimit(runtime.GOMAXPROCS(-1))
}

func (c *ConcurrencyLimit) String() string {
	return strconv.Itoa(int(*c))
}

func (c *ConcurrencyLimit) Set(v string) error {
	switch v {
	case "":
		*c = 0
		return nil
	case concurrencyAuto:
		*c = GoMaxProcsConcurrencyLimit()
		return nil
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid concurrency %q, expected a number or %q", v, concurrencyAuto)
	}
	if p < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", p)
	}
	*c = ConcurrencyLimit(p)
	return nil
}

func (c *ConcurrencyLimit) UnmarshalText(text []byte) error {
	return c.Set(string(text))
}

func (c ConcurrencyLimit) MarshalText() ([]byte, error) {
	return []byte(strconv.Itoa(int(c))), nil
}
