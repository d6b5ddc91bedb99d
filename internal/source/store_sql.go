package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"jurisync/internal/domain"
	"jurisync/pkg/platform/sentinel"
	pstrings "jurisync/pkg/platform/strings"
)

// Open connects to one upstream database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxOpenConns(5)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping source: %w: %w", sentinel.ErrUnavailable, err)
	}
	return db, nil
}

// JurinetReader reads supreme-court rows.
type JurinetReader struct {
	db *sql.DB
}

// NewJurinetReader wraps an open connection.
func NewJurinetReader(db *sql.DB) *JurinetReader {
	return &JurinetReader{db: db}
}

func (r *JurinetReader) Source() domain.Source { return domain.SourceJurinet }

// jurinetRow mirrors the upstream DOCUMENTS table column for column. The
// explicit schema replaces the duck-typed row handling the sources invite;
// decode is the only place a raw row becomes a SourceRecord.
type jurinetRow struct {
	id             int64
	body           []byte
	pseudoBody     []byte
	nacCode        sql.NullString
	nacSubCode     sql.NullString
	publicityFlag  sql.NullInt64
	blockCode      sql.NullInt64
	blockCodeText  sql.NullString
	extraTerms     sql.NullString
	registerNumber sql.NullString
	jurisdiction   sql.NullString
	chamberID      sql.NullString
	dateYear       sql.NullString
	dateMonth      sql.NullString
	dateDay        sql.NullString
	appealNumbers  sql.NullString

	indicators [11]sql.NullInt64
}

const jurinetColumns = `id, body, pseudo_body, nac_code, nac_sub_code,
	publicity_flag, block_code, block_code_text, additional_terms,
	register_number, jurisdiction, chamber_id,
	date_year, date_month, date_day, appeal_numbers,
	ind_personne_morale, ind_adresse, ind_date_naissance, ind_date_mariage,
	ind_date_deces, ind_immatriculation, ind_cadastre,
	ind_coordonnee_electronique, ind_prof_magistrat_greffier,
	ind_prof_avocat, ind_prof_expert`

func scanJurinet(rows *sql.Rows) (jurinetRow, error) {
	var row jurinetRow
	err := rows.Scan(
		&row.id, &row.body, &row.pseudoBody, &row.nacCode, &row.nacSubCode,
		&row.publicityFlag, &row.blockCode, &row.blockCodeText, &row.extraTerms,
		&row.registerNumber, &row.jurisdiction, &row.chamberID,
		&row.dateYear, &row.dateMonth, &row.dateDay, &row.appealNumbers,
		&row.indicators[0], &row.indicators[1], &row.indicators[2], &row.indicators[3],
		&row.indicators[4], &row.indicators[5], &row.indicators[6], &row.indicators[7],
		&row.indicators[8], &row.indicators[9], &row.indicators[10],
	)
	return row, err
}

func (row jurinetRow) decode() (domain.SourceRecord, error) {
	text, err := decodeLegacyText(row.body)
	if err != nil {
		return domain.SourceRecord{}, fmt.Errorf("row %d: %w", row.id, err)
	}
	pseudo, err := decodeLegacyText(row.pseudoBody)
	if err != nil {
		return domain.SourceRecord{}, fmt.Errorf("row %d: %w", row.id, err)
	}

	record := domain.SourceRecord{
		ID:              row.id,
		Source:          domain.SourceJurinet,
		Text:            text,
		PseudoText:      pseudo,
		NACCode:         row.nacCode.String,
		NACSubCode:      row.nacSubCode.String,
		PublicityFlag:   nullableFlag(row.publicityFlag),
		BlockCode:       nullableFlag(row.blockCode),
		BlockCodeText:   row.blockCodeText.String,
		AdditionalTerms: row.extraTerms.String,
		RegisterNumber:  row.registerNumber.String,
		Jurisdiction:    row.jurisdiction.String,
		ChamberID:       row.chamberID.String,
		DecisionDate: domain.DateParts{
			Year:  row.dateYear.String,
			Month: row.dateMonth.String,
			Day:   row.dateDay.String,
		},
		Indicators: decodeIndicators(row.indicators),
	}
	if row.appealNumbers.Valid {
		record.AppealDecisionNumbers = pstrings.DedupeAndTrim(
			strings.Split(row.appealNumbers.String, ";"))
	}
	return record, nil
}

func (r *JurinetReader) FetchBatch(ctx context.Context, offset, limit int64, order Order) ([]domain.SourceRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM documents ORDER BY id %s OFFSET $1 LIMIT $2`,
		jurinetColumns, sqlOrder(order))
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("jurinet fetch batch: %w", err)
	}
	defer rows.Close()

	var records []domain.SourceRecord
	for rows.Next() {
		row, err := scanJurinet(rows)
		if err != nil {
			return nil, fmt.Errorf("jurinet scan: %w", err)
		}
		record, err := row.decode()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *JurinetReader) FetchNew(ctx context.Context) ([]domain.SourceRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM documents WHERE processed = 0 ORDER BY id ASC`, jurinetColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("jurinet fetch new: %w", err)
	}
	defer rows.Close()

	var records []domain.SourceRecord
	for rows.Next() {
		row, err := scanJurinet(rows)
		if err != nil {
			return nil, fmt.Errorf("jurinet scan: %w", err)
		}
		record, err := row.decode()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *JurinetReader) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET processed = 1, erroneous = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("jurinet mark processed %d: %w", id, err)
	}
	return nil
}

func (r *JurinetReader) MarkErroneous(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET erroneous = 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("jurinet mark erroneous %d: %w", id, err)
	}
	return nil
}

// JuricaReader reads appellate-court rows. Same shape as jurinet except for
// the Portalis cross-reference and the absence of direct appeal links.
type JuricaReader struct {
	db *sql.DB
}

// NewJuricaReader wraps an open connection.
func NewJuricaReader(db *sql.DB) *JuricaReader {
	return &JuricaReader{db: db}
}

func (r *JuricaReader) Source() domain.Source { return domain.SourceJurica }

type juricaRow struct {
	id             int64
	body           []byte
	pseudoBody     []byte
	nacCode        sql.NullString
	nacSubCode     sql.NullString
	publicityFlag  sql.NullInt64
	blockCode      sql.NullInt64
	blockCodeText  sql.NullString
	extraTerms     sql.NullString
	registerNumber sql.NullString
	jurisdiction   sql.NullString
	chamberID      sql.NullString
	dateYear       sql.NullString
	dateMonth      sql.NullString
	dateDay        sql.NullString
	portalisID     sql.NullString

	indicators [11]sql.NullInt64
}

const juricaColumns = `id, body, pseudo_body, nac_code, nac_sub_code,
	publicity_flag, block_code, block_code_text, additional_terms,
	register_number, jurisdiction, chamber_id,
	date_year, date_month, date_day, portalis_id,
	ind_personne_morale, ind_adresse, ind_date_naissance, ind_date_mariage,
	ind_date_deces, ind_immatriculation, ind_cadastre,
	ind_coordonnee_electronique, ind_prof_magistrat_greffier,
	ind_prof_avocat, ind_prof_expert`

func scanJurica(rows *sql.Rows) (juricaRow, error) {
	var row juricaRow
	err := rows.Scan(
		&row.id, &row.body, &row.pseudoBody, &row.nacCode, &row.nacSubCode,
		&row.publicityFlag, &row.blockCode, &row.blockCodeText, &row.extraTerms,
		&row.registerNumber, &row.jurisdiction, &row.chamberID,
		&row.dateYear, &row.dateMonth, &row.dateDay, &row.portalisID,
		&row.indicators[0], &row.indicators[1], &row.indicators[2], &row.indicators[3],
		&row.indicators[4], &row.indicators[5], &row.indicators[6], &row.indicators[7],
		&row.indicators[8], &row.indicators[9], &row.indicators[10],
	)
	return row, err
}

func (row juricaRow) decode() (domain.SourceRecord, error) {
	text, err := decodeLegacyText(row.body)
	if err != nil {
		return domain.SourceRecord{}, fmt.Errorf("row %d: %w", row.id, err)
	}
	pseudo, err := decodeLegacyText(row.pseudoBody)
	if err != nil {
		return domain.SourceRecord{}, fmt.Errorf("row %d: %w", row.id, err)
	}

	return domain.SourceRecord{
		ID:              row.id,
		Source:          domain.SourceJurica,
		Text:            text,
		PseudoText:      pseudo,
		NACCode:         row.nacCode.String,
		NACSubCode:      row.nacSubCode.String,
		PublicityFlag:   nullableFlag(row.publicityFlag),
		BlockCode:       nullableFlag(row.blockCode),
		BlockCodeText:   row.blockCodeText.String,
		AdditionalTerms: row.extraTerms.String,
		RegisterNumber:  row.registerNumber.String,
		Jurisdiction:    row.jurisdiction.String,
		ChamberID:       row.chamberID.String,
		DecisionDate: domain.DateParts{
			Year:  row.dateYear.String,
			Month: row.dateMonth.String,
			Day:   row.dateDay.String,
		},
		PortalisID: row.portalisID.String,
		Indicators: decodeIndicators(row.indicators),
	}, nil
}

func (r *JuricaReader) FetchBatch(ctx context.Context, offset, limit int64, order Order) ([]domain.SourceRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM decisions ORDER BY id %s OFFSET $1 LIMIT $2`,
		juricaColumns, sqlOrder(order))
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("jurica fetch batch: %w", err)
	}
	defer rows.Close()

	var records []domain.SourceRecord
	for rows.Next() {
		row, err := scanJurica(rows)
		if err != nil {
			return nil, fmt.Errorf("jurica scan: %w", err)
		}
		record, err := row.decode()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *JuricaReader) FetchNew(ctx context.Context) ([]domain.SourceRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM decisions WHERE processed = 0 ORDER BY id ASC`, juricaColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("jurica fetch new: %w", err)
	}
	defer rows.Close()

	var records []domain.SourceRecord
	for rows.Next() {
		row, err := scanJurica(rows)
		if err != nil {
			return nil, fmt.Errorf("jurica scan: %w", err)
		}
		record, err := row.decode()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *JuricaReader) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE decisions SET processed = 1, erroneous = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("jurica mark processed %d: %w", id, err)
	}
	return nil
}

func (r *JuricaReader) MarkErroneous(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE decisions SET erroneous = 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("jurica mark erroneous %d: %w", id, err)
	}
	return nil
}

func sqlOrder(order Order) string {
	if order == OrderDesc {
		return "DESC"
	}
	return "ASC"
}

func nullableFlag(v sql.NullInt64) domain.Flag {
	if !v.Valid {
		return nil
	}
	return domain.FlagOf(int(v.Int64))
}

// decodeIndicators maps the indicator columns in declaration order.
func decodeIndicators(cols [11]sql.NullInt64) domain.RedactionIndicators {
	return domain.RedactionIndicators{
		PersonneMorale:         nullableFlag(cols[0]),
		Adresse:                nullableFlag(cols[1]),
		DateNaissance:          nullableFlag(cols[2]),
		DateMariage:            nullableFlag(cols[3]),
		DateDeces:              nullableFlag(cols[4]),
		Immatriculation:        nullableFlag(cols[5]),
		Cadastre:               nullableFlag(cols[6]),
		CoordonneeElectronique: nullableFlag(cols[7]),

		ProfessionnelMagistratGreffier: nullableFlag(cols[8]),
		ProfessionnelAvocat:            nullableFlag(cols[9]),
		ProfessionnelExpert:            nullableFlag(cols[10]),
	}
}
