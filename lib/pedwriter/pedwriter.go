// Package pedwriter renders sample pedigrees in PED format: one
// tab-separated line per sample with family, sample name, father,
// mother, sex, and phenotype.
package pedwriter

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vardex/vardex/lib/variantdb"
)

// Write writes one PED line per sample. Parents are referenced by
// sample name; a father or mother id that resolves to no known sample
// renders as "0", the PED convention for founders.
func Write(w io.Writer, samples []variantdb.Sample) error {
	namesByID := make(map[int64]string, len(samples))
	for _, sample := range samples {
		namesByID[sample.ID] = sample.Name
	}

	parent := func(id int64) string {
		if name, ok := namesByID[id]; ok {
			return name
		}
		return "0"
	}

	bw := bufio.NewWriter(w)
	for _, sample := range samples {
		line := strings.Join([]string{
			sample.FamilyID,
			sample.Name,
			parent(sample.FatherID),
			parent(sample.MotherID),
			strconv.Itoa(sample.Sex),
			strconv.Itoa(sample.Phenotype),
		}, "\t")
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}

	return bw.Flush()
}
