// Command cohort writes a synthetic variant cohort as vardex import
// input. It emits one JSON record per line on stdout, and can write a
// matching gene wordset and a BED file of target regions to try the
// wordset and selection commands on.
//
// A typical session:
//
//	cohort -variants 10000 -wordset genes.txt -bed targets.bed > cohort.jsonl
//	vardex --db demo.db init
//	vardex --db demo.db import cohort.jsonl
//	vardex --db demo.db wordset import panel genes.txt
//	vardex --db demo.db selection from-bed ontarget targets.bed
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"
)

var (
	flagVariants = flag.Int("variants", 1000, "number of variants to generate")
	flagSamples  = flag.String("samples", "alice,bob,charlie", "comma-separated sample names")
	flagSeed     = flag.Int64("seed", 1, "random seed")
	flagWordset  = flag.String("wordset", "", "also write a gene wordset to this file")
	flagBed      = flag.String("bed", "", "also write a BED file of target regions to this file")
)

var chromosomes = []string{
	"chr1", "chr2", "chr3", "chr4", "chr5", "chr6", "chr7", "chr8",
	"chr9", "chr10", "chr11", "chr12", "chr13", "chr14", "chr15",
	"chr16", "chr17", "chr18", "chr19", "chr20", "chr21", "chr22",
	"chrX",
}

var genes = []string{
	"TP53", "BRCA1", "BRCA2", "CFTR", "KRAS", "EGFR", "MYC", "PTEN",
	"APC", "MLH1", "MSH2", "ATM", "CHEK2", "PALB2", "RB1", "VHL",
}

var consequences = []struct {
	name   string
	impact string
}{
	{"synonymous_variant", "LOW"},
	{"missense_variant", "MODERATE"},
	{"stop_gained", "HIGH"},
	{"frameshift_variant", "HIGH"},
	{"splice_region_variant", "MODERATE"},
	{"intron_variant", "MODIFIER"},
}

var bases = []string{"A", "C", "G", "T"}

type genotype struct {
	Name string `json:"name"`
	GT   int    `json:"gt"`
	DP   int    `json:"dp"`
}

type annotation struct {
	Consequence string `json:"consequence"`
	Impact      string `json:"impact"`
	Gene        string `json:"gene"`
}

type record struct {
	Chr         string       `json:"chr"`
	Pos         int          `json:"pos"`
	Ref         string       `json:"ref"`
	Alt         string       `json:"alt"`
	Qual        float64      `json:"qual"`
	AF          float64      `json:"af"`
	Annotations []annotation `json:"annotations,omitempty"`
	Samples     []genotype   `json:"samples"`
}

func makeRecord(rng *rand.Rand, samples []string) record {
	ref := bases[rng.Intn(len(bases))]
	alt := bases[rng.Intn(len(bases))]
	for alt == ref {
		alt = bases[rng.Intn(len(bases))]
	}
	if rng.Intn(10) == 0 {
		alt += bases[rng.Intn(len(bases))]
	}

	rv := record{
		Chr:  chromosomes[rng.Intn(len(chromosomes))],
		Pos:  1 + rng.Intn(2_000_000),
		Ref:  ref,
		Alt:  alt,
		Qual: float64(rng.Intn(10000)) / 100,
		AF:   float64(1+rng.Intn(1000)) / 10000,
	}

	for i := 0; i < rng.Intn(3); i++ {
		consequence := consequences[rng.Intn(len(consequences))]
		rv.Annotations = append(rv.Annotations, annotation{
			Consequence: consequence.name,
			Impact:      consequence.impact,
			Gene:        genes[rng.Intn(len(genes))],
		})
	}

	for _, name := range samples {
		rv.Samples = append(rv.Samples, genotype{
			Name: name,
			GT:   rng.Intn(3),
			DP:   5 + rng.Intn(60),
		})
	}

	return rv
}

func writeLines(filename string, lines []string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return err
		}
	}
	return nil
}

func run() error {
	var samples []string
	for _, name := range strings.Split(*flagSamples, ",") {
		if name = strings.TrimSpace(name); name != "" {
			samples = append(samples, name)
		}
	}

	rng := rand.New(rand.NewSource(*flagSeed))

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	enc := json.NewEncoder(out)
	seen := map[string]bool{}
	for i := 0; i < *flagVariants; i++ {
		rec := makeRecord(rng, samples)
		key := fmt.Sprintf("%s:%d:%s:%s", rec.Chr, rec.Pos, rec.Ref, rec.Alt)
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := enc.Encode(rec); err != nil {
			return err
		}
	}

	if *flagWordset != "" {
		if err := writeLines(*flagWordset, genes[:len(genes)/2]); err != nil {
			return err
		}
	}

	if *flagBed != "" {
		var intervals []string
		for _, chrom := range chromosomes[:4] {
			start := rng.Intn(1_000_000)
			end := start + 100_000 + rng.Intn(400_000)
			intervals = append(intervals,
				fmt.Sprintf("%s\t%d\t%d\ttarget_%s", chrom, start, end, chrom))
		}
		if err := writeLines(*flagBed, intervals); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
