package variantdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/vardex/vardex/lib/logging"
	"github.com/vardex/vardex/lib/reader"
	"github.com/vardex/vardex/lib/varapi"
	"github.com/vardex/vardex/lib/varerror"
)

// maxImportFailures caps how many bad records an import tolerates
// before giving up.
const maxImportFailures = 50

// ImportResult summarizes one import run.
type ImportResult struct {
	ImportID       string
	NumVariants    int
	NumDuplicates  int
	NumAnnotations int
	NumGenotypes   int
	NumSkipped     int
	Duration       time.Duration

	// Failures holds the per-record errors of skipped records, nil
	// when everything imported cleanly.
	Failures error
}

// computedVariantFields are the editable and derived columns every
// import adds alongside the reader's own catalog.
func computedVariantFields(caseControl bool) []varapi.Field {
	rv := []varapi.Field{
		{Name: "favorite", Category: varapi.CategoryVariant, Description: "marked as favorite", Type: varapi.TypeBool},
		{Name: "comment", Category: varapi.CategoryVariant, Description: "user comment", Type: varapi.TypeString},
		{Name: "classification", Category: varapi.CategoryVariant, Description: "acmg classification", Type: varapi.TypeInt},
		{Name: "tags", Category: varapi.CategoryVariant, Description: "comma separated tags", Type: varapi.TypeString},
		{Name: "count_hom", Category: varapi.CategoryVariant, Description: "homozygous sample count", Type: varapi.TypeInt},
		{Name: "count_het", Category: varapi.CategoryVariant, Description: "heterozygous sample count", Type: varapi.TypeInt},
		{Name: "count_ref", Category: varapi.CategoryVariant, Description: "reference sample count", Type: varapi.TypeInt},
		{Name: "count_var", Category: varapi.CategoryVariant, Description: "carrier sample count", Type: varapi.TypeInt},
		{Name: "is_snp", Category: varapi.CategoryVariant, Description: "ref and alt have equal length", Type: varapi.TypeBool},
		{Name: "is_indel", Category: varapi.CategoryVariant, Description: "ref and alt differ in length", Type: varapi.TypeBool},
		{Name: "annotation_count", Category: varapi.CategoryVariant, Description: "number of annotations", Type: varapi.TypeInt},
	}

	if caseControl {
		for _, group := range []string{"case", "control"} {
			for _, tally := range []string{"hom", "het", "ref"} {
				rv = append(rv, varapi.Field{
					Name:        group + "_count_" + tally,
					Category:    varapi.CategoryVariant,
					Description: fmt.Sprintf("%szygous count in %s samples", tally, group),
					Type:        varapi.TypeInt,
				})
			}
		}
	}

	return rv
}

var isMajorField = varapi.Field{
	Name:        "is_major",
	Category:    varapi.CategoryAnnotation,
	Description: "first annotation of the variant",
	Type:        varapi.TypeBool,
}

// genotypeRow is one prepared sample_has_variant row.
type genotypeRow struct {
	sampleID int64
	values   map[string]interface{}
}

// preparedVariant is one record after the parse stage: computed
// fields merged, sample names resolved to ids.
type preparedVariant struct {
	values      map[string]interface{}
	annotations []map[string]interface{}
	genotypes   []genotypeRow
	err         error
}

type importColumns struct {
	variant    []string
	annotation []string
	sample     []string
}

func splitColumns(fields []varapi.Field) importColumns {
	var rv importColumns
	for _, field := range fields {
		switch field.Category {
		case varapi.CategoryVariant, varapi.CategoryInfo:
			rv.variant = append(rv.variant, field.Name)
		case varapi.CategoryAnnotation:
			rv.annotation = append(rv.annotation, field.Name)
		case varapi.CategorySample:
			rv.sample = append(rv.sample, field.Name)
		}
	}
	return rv
}

func insertStatement(table string, fixed []string, columns []string, orIgnore bool) string {
	var cols []string
	cols = append(cols, fixed...)
	for _, column := range columns {
		cols = append(cols, "`"+column+"`")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")

	verb := "INSERT"
	if orIgnore {
		verb = "INSERT OR IGNORE"
	}
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, table, strings.Join(cols, ","), placeholders)
}

// mergeCatalog appends extra fields to the reader's catalog, skipping
// names the reader already declares in the same category.
func mergeCatalog(base, extra []varapi.Field) []varapi.Field {
	seen := map[fieldKeyPair]bool{}
	for _, field := range base {
		seen[fieldKeyPair{field.Category, field.Name}] = true
	}

	rv := append([]varapi.Field{}, base...)
	for _, field := range extra {
		if seen[fieldKeyPair{field.Category, field.Name}] {
			continue
		}
		rv = append(rv, field)
	}
	return rv
}

type fieldKeyPair struct {
	category string
	name     string
}

// ImportReader drains a record source into the store: declares its
// catalog plus the computed fields, creates the record tables, then
// streams records through a parse worker pool into a single writer
// batching transactions.
func (d *DB) ImportReader(ctx context.Context, src reader.Reader) (*ImportResult, error) {
	logger := logging.FromContext(ctx)
	t0 := time.Now()

	caseControl := len(d.options.caseSamples) > 0 || len(d.options.controlSamples) > 0

	fields := mergeCatalog(src.Fields(), computedVariantFields(caseControl))
	hasAnnotations := false
	for _, field := range fields {
		if field.Category == varapi.CategoryAnnotation {
			hasAnnotations = true
			break
		}
	}
	if hasAnnotations {
		fields = mergeCatalog(fields, []varapi.Field{isMajorField})
	}

	if err := d.InsertFields(ctx, fields); err != nil {
		return nil, err
	}
	if err := d.createVariantTables(ctx, fields); err != nil {
		return nil, err
	}
	if err := d.InsertSamples(ctx, src.Samples()); err != nil {
		return nil, err
	}

	sampleIDs, err := d.sampleIDs(ctx)
	if err != nil {
		return nil, err
	}

	prep := &preparer{
		sampleIDs:  sampleIDs,
		caseSet:    toSet(d.options.caseSamples),
		controlSet: toSet(d.options.controlSamples),
		tallyCases: caseControl,
	}

	columns := splitColumns(fields)

	writer, err := d.newBatchWriter(ctx, columns)
	if err != nil {
		return nil, err
	}
	defer writer.close()

	pool, err := ants.NewPool(d.options.parseWorkers)
	if err != nil {
		return nil, wrapQueryError(err, "unable to start parse pool")
	}
	defer pool.Release()

	prepared := make(chan *preparedVariant, d.options.batchSize)

	var wg sync.WaitGroup
	var scanErr error
	go func() {
		for src.Scan() {
			variant := src.Variant()
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				prepared <- prep.prepare(variant)
			}); err != nil {
				wg.Done()
				prepared <- &preparedVariant{err: err}
			}
		}
		scanErr = src.Err()
		wg.Wait()
		close(prepared)
	}()

	result := &ImportResult{
		ImportID: uuid.NewString(),
	}
	var failures *multierror.Error

	for pv := range prepared {
		if pv.err != nil {
			failures = multierror.Append(failures, pv.err)
			result.NumSkipped++
			if result.NumSkipped > maxImportFailures {
				writer.abort()
				drain(prepared)
				return nil, varerror.New(
					varerror.WithKind(varerror.KindBadInput),
					varerror.WithMessage("too many bad records, giving up"),
					varerror.WithCause(failures.ErrorOrNil()),
				)
			}
			continue
		}

		if err := writer.write(pv, result); err != nil {
			writer.abort()
			drain(prepared)
			return nil, err
		}

		if (result.NumVariants+result.NumDuplicates)%d.options.batchSize == 0 {
			logger.Info("import progress",
				zap.Int("variants", result.NumVariants),
				zap.Int("duplicates", result.NumDuplicates),
				zap.Int("skipped", result.NumSkipped),
			)
		}
	}

	if err := writer.commit(); err != nil {
		return nil, err
	}

	if scanErr != nil {
		return nil, scanErr
	}

	if err := d.insertSelectionRecord(ctx, varapi.DefaultSource, result.NumVariants, ""); err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"import_id":        result.ImportID,
		"imported_at":      t0.UTC().Format(time.RFC3339),
		"variant_count":    fmt.Sprintf("%d", result.NumVariants),
		"annotation_count": fmt.Sprintf("%d", result.NumAnnotations),
		"sample_count":     fmt.Sprintf("%d", len(src.Samples())),
	}
	for key, value := range src.Metadata() {
		metadata["reader_"+key] = value
	}
	if err := d.SetMetadata(ctx, metadata); err != nil {
		return nil, err
	}

	result.Duration = time.Since(t0)
	result.Failures = failures.ErrorOrNil()

	logger.Info("import finished",
		zap.String("import_id", result.ImportID),
		zap.Int("variants", result.NumVariants),
		zap.Int("duplicates", result.NumDuplicates),
		zap.Int("annotations", result.NumAnnotations),
		zap.Int("genotypes", result.NumGenotypes),
		zap.Int("skipped", result.NumSkipped),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

func drain(ch <-chan *preparedVariant) {
	for range ch {
	}
}

func toSet(names []string) map[string]bool {
	rv := map[string]bool{}
	for _, name := range names {
		rv[name] = true
	}
	return rv
}

// preparer computes the derived columns of one record. It does no
// store access; sample ids are resolved from a pre-fetched map, so
// prepare can run on many records concurrently.
type preparer struct {
	sampleIDs  map[string]int64
	caseSet    map[string]bool
	controlSet map[string]bool
	tallyCases bool
}

func (p *preparer) prepare(variant varapi.Variant) *preparedVariant {
	values := make(map[string]interface{}, len(variant.Values)+16)
	for key, value := range variant.Values {
		values[key] = value
	}

	ref, _ := values["ref"].(string)
	alt, _ := values["alt"].(string)

	values["favorite"] = false
	values["comment"] = ""
	values["classification"] = 3
	values["tags"] = ""
	values["is_snp"] = len(ref) == len(alt)
	values["is_indel"] = len(ref) != len(alt)
	values["annotation_count"] = len(variant.Annotations)

	tallies := map[string]int{}
	var genotypes []genotypeRow

	for _, sample := range variant.Samples {
		sampleID, ok := p.sampleIDs[sample.Name]
		if !ok {
			return &preparedVariant{err: varerror.New(
				varerror.WithKind(varerror.KindBadInput),
				varerror.WithMessage("record references undeclared sample"),
				varerror.WithField(sample.Name),
			)}
		}

		genotypes = append(genotypes, genotypeRow{
			sampleID: sampleID,
			values:   sample.Values,
		})

		gt, ok := asInt(sample.Values["gt"])
		if !ok {
			continue
		}
		var zygosity string
		switch gt {
		case 0:
			zygosity = "ref"
		case 1:
			zygosity = "het"
		case 2:
			zygosity = "hom"
		default:
			continue
		}
		tallies["count_"+zygosity]++
		if gt > 0 {
			tallies["count_var"]++
		}
		if p.tallyCases {
			if p.caseSet[sample.Name] {
				tallies["case_count_"+zygosity]++
			}
			if p.controlSet[sample.Name] {
				tallies["control_count_"+zygosity]++
			}
		}
	}

	values["count_hom"] = tallies["count_hom"]
	values["count_het"] = tallies["count_het"]
	values["count_ref"] = tallies["count_ref"]
	values["count_var"] = tallies["count_var"]
	if p.tallyCases {
		for _, group := range []string{"case", "control"} {
			for _, tally := range []string{"hom", "het", "ref"} {
				name := group + "_count_" + tally
				values[name] = tallies[name]
			}
		}
	}

	annotations := make([]map[string]interface{}, 0, len(variant.Annotations))
	for i, annotation := range variant.Annotations {
		merged := make(map[string]interface{}, len(annotation)+1)
		for key, value := range annotation {
			merged[key] = value
		}
		merged["is_major"] = i == 0
		annotations = append(annotations, merged)
	}

	return &preparedVariant{
		values:      values,
		annotations: annotations,
		genotypes:   genotypes,
	}
}

func asInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// batchWriter owns the write side of an import: one transaction at a
// time, committed every batchSize variants, with prepared statements
// shared across transactions.
type batchWriter struct {
	d       *DB
	ctx     context.Context
	columns importColumns

	variantStmt    *sql.Stmt
	annotationStmt *sql.Stmt
	genotypeStmt   *sql.Stmt

	tx      *sql.Tx
	pending int
}

func (d *DB) newBatchWriter(ctx context.Context, columns importColumns) (*batchWriter, error) {
	w := &batchWriter{
		d:       d,
		ctx:     ctx,
		columns: columns,
	}

	var err error
	w.variantStmt, err = d.db.PrepareContext(ctx,
		insertStatement("variants", nil, columns.variant, true))
	if err != nil {
		return nil, wrapQueryError(err, "unable to prepare variant insert")
	}

	if len(columns.annotation) > 0 {
		w.annotationStmt, err = d.db.PrepareContext(ctx,
			insertStatement("annotations", []string{"variant_id"}, columns.annotation, false))
		if err != nil {
			w.close()
			return nil, wrapQueryError(err, "unable to prepare annotation insert")
		}
	}

	if len(columns.sample) > 0 {
		w.genotypeStmt, err = d.db.PrepareContext(ctx,
			insertStatement("sample_has_variant", []string{"sample_id", "variant_id"}, columns.sample, true))
		if err != nil {
			w.close()
			return nil, wrapQueryError(err, "unable to prepare genotype insert")
		}
	}

	if err := w.begin(); err != nil {
		w.close()
		return nil, err
	}

	return w, nil
}

func (w *batchWriter) begin() error {
	tx, err := w.d.db.BeginTx(w.ctx, nil)
	if err != nil {
		return wrapQueryError(err, "unable to begin import transaction")
	}
	w.tx = tx
	w.pending = 0
	return nil
}

func (w *batchWriter) write(pv *preparedVariant, result *ImportResult) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	args := make([]interface{}, 0, len(w.columns.variant))
	for _, column := range w.columns.variant {
		args = append(args, pv.values[column])
	}

	res, err := w.tx.StmtContext(w.ctx, w.variantStmt).ExecContext(w.ctx, args...)
	if err != nil {
		return wrapQueryError(err, "unable to insert variant")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapQueryError(err, "unable to read insert result")
	}
	if affected == 0 {
		result.NumDuplicates++
		return w.maybeCommit(result)
	}
	result.NumVariants++

	variantID, err := res.LastInsertId()
	if err != nil {
		return wrapQueryError(err, "unable to read variant id")
	}

	if w.annotationStmt != nil {
		stmt := w.tx.StmtContext(w.ctx, w.annotationStmt)
		for _, annotation := range pv.annotations {
			args := make([]interface{}, 0, len(w.columns.annotation)+1)
			args = append(args, variantID)
			for _, column := range w.columns.annotation {
				args = append(args, annotation[column])
			}
			if _, err := stmt.ExecContext(w.ctx, args...); err != nil {
				return wrapQueryError(err, "unable to insert annotation")
			}
			result.NumAnnotations++
		}
	}

	if w.genotypeStmt != nil {
		stmt := w.tx.StmtContext(w.ctx, w.genotypeStmt)
		for _, genotype := range pv.genotypes {
			args := make([]interface{}, 0, len(w.columns.sample)+2)
			args = append(args, genotype.sampleID, variantID)
			for _, column := range w.columns.sample {
				args = append(args, genotype.values[column])
			}
			if _, err := stmt.ExecContext(w.ctx, args...); err != nil {
				return wrapQueryError(err, "unable to insert genotype")
			}
			result.NumGenotypes++
		}
	}

	return w.maybeCommit(result)
}

func (w *batchWriter) maybeCommit(result *ImportResult) error {
	w.pending++
	if w.pending < w.d.options.batchSize {
		return nil
	}
	if err := w.tx.Commit(); err != nil {
		w.tx = nil
		return wrapQueryError(err, "unable to commit import batch")
	}
	return w.begin()
}

func (w *batchWriter) commit() error {
	if w.tx == nil {
		return nil
	}
	if err := w.tx.Commit(); err != nil {
		w.tx = nil
		return wrapQueryError(err, "unable to commit import batch")
	}
	w.tx = nil
	return nil
}

func (w *batchWriter) abort() {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}
}

func (w *batchWriter) close() {
	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}
	if w.variantStmt != nil {
		w.variantStmt.Close()
	}
	if w.annotationStmt != nil {
		w.annotationStmt.Close()
	}
	if w.genotypeStmt != nil {
		w.genotypeStmt.Close()
	}
}
