package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the server database connection.
type DB struct {
	*sql.DB
}

// NewDB opens the database and creates the schema when missing.
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			serial INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_temporary BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS user2currency (
			user_serial INTEGER NOT NULL,
			currency_serial INTEGER NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_serial, currency_serial)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS user2table (
			user_serial INTEGER NOT NULL,
			table_serial INTEGER NOT NULL,
			money INTEGER NOT NULL DEFAULT 0,
			bet INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_serial, table_serial)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rake (
			currency_serial INTEGER NOT NULL,
			user_serial INTEGER NOT NULL,
			amount INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (currency_serial, user_serial)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS hands (
			serial INTEGER PRIMARY KEY AUTOINCREMENT,
			table_serial INTEGER NOT NULL,
			tourney_serial INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS table_stats (
			table_serial INTEGER PRIMARY KEY,
			observers INTEGER NOT NULL DEFAULT 0,
			waiting INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS monitor (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event INTEGER NOT NULL,
			param1 INTEGER NOT NULL DEFAULT 0,
			param2 INTEGER NOT NULL DEFAULT 0,
			param3 INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_serial INTEGER NOT NULL,
			table_serial INTEGER NOT NULL,
			message TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// CreateUser inserts a user row and returns its serial.
func (db *DB) CreateUser(name string, temporary bool) (int64, error) {
	res, err := db.Exec(`INSERT INTO users (name, is_temporary) VALUES (?, ?)`, name, temporary)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UserName returns the display name for a serial.
func (db *DB) UserName(serial int64) (string, error) {
	var name string
	err := db.QueryRow(`SELECT name FROM users WHERE serial = ?`, serial).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user not found")
	}
	return name, err
}

// UserIsTemporary reports whether the serial belongs to a temporary user.
func (db *DB) UserIsTemporary(serial int64) (bool, error) {
	var temporary bool
	err := db.QueryRow(`SELECT is_temporary FROM users WHERE serial = ?`, serial).Scan(&temporary)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("user not found")
	}
	return temporary, err
}

// BankrollGet returns the user's balance in the given currency.
func (db *DB) BankrollGet(userSerial, currencySerial int64) (int64, error) {
	var amount int64
	err := db.QueryRow(`
		SELECT amount FROM user2currency
		WHERE user_serial = ? AND currency_serial = ?
	`, userSerial, currencySerial).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// BankrollAdd credits (or debits) the user's currency balance.
func (db *DB) BankrollAdd(userSerial, currencySerial, delta int64) error {
	_, err := db.Exec(`
		INSERT INTO user2currency (user_serial, currency_serial, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, currency_serial) DO UPDATE SET amount = amount + ?
	`, userSerial, currencySerial, delta, delta)
	return err
}

// TableMoneyGet returns the user's money at the table.
func (db *DB) TableMoneyGet(userSerial, tableSerial int64) (int64, error) {
	var money int64
	err := db.QueryRow(`
		SELECT money FROM user2table
		WHERE user_serial = ? AND table_serial = ?
	`, userSerial, tableSerial).Scan(&money)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return money, err
}

// TableMoneyAdd applies a per-hand delta to the user's table money.
func (db *DB) TableMoneyAdd(userSerial, tableSerial, delta int64) error {
	_, err := db.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = money + ?
	`, userSerial, tableSerial, delta, delta)
	return err
}

// TableMoneySet writes the user's table money outright.
func (db *DB) TableMoneySet(userSerial, tableSerial, money int64) error {
	_, err := db.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = ?
	`, userSerial, tableSerial, money, money)
	return err
}

// TableMoneyDelete removes the user's row at the table and returns the
// money it held.
func (db *DB) TableMoneyDelete(userSerial, tableSerial int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var money int64
	err = tx.QueryRow(`
		SELECT money FROM user2table
		WHERE user_serial = ? AND table_serial = ?
	`, userSerial, tableSerial).Scan(&money)
	if err == sql.ErrNoRows {
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(`
		DELETE FROM user2table WHERE user_serial = ? AND table_serial = ?
	`, userSerial, tableSerial)
	if err != nil {
		return 0, err
	}
	return money, tx.Commit()
}

// TableMoneyMove atomically rebinds the user's money row to another table
// and returns the moved balance.
func (db *DB) TableMoneyMove(userSerial, fromTable, toTable int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var money int64
	err = tx.QueryRow(`
		SELECT money FROM user2table
		WHERE user_serial = ? AND table_serial = ?
	`, userSerial, fromTable).Scan(&money)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(`
		DELETE FROM user2table WHERE user_serial = ? AND table_serial = ?
	`, userSerial, fromTable)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(`
		INSERT INTO user2table (user_serial, table_serial, money)
		VALUES (?, ?, ?)
		ON CONFLICT(user_serial, table_serial) DO UPDATE SET money = money + ?
	`, userSerial, toTable, money, money)
	if err != nil {
		return 0, err
	}
	return money, tx.Commit()
}

// RakeAdd accumulates rake for the user in the given currency.
func (db *DB) RakeAdd(currencySerial, userSerial, amount int64) error {
	_, err := db.Exec(`
		INSERT INTO rake (currency_serial, user_serial, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(currency_serial, user_serial) DO UPDATE SET amount = amount + ?
	`, currencySerial, userSerial, amount, amount)
	return err
}

// RakeGet returns the accumulated rake for the user in the currency.
func (db *DB) RakeGet(currencySerial, userSerial int64) (int64, error) {
	var amount int64
	err := db.QueryRow(`
		SELECT amount FROM rake WHERE currency_serial = ? AND user_serial = ?
	`, currencySerial, userSerial).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// HandCreate allocates a hand serial for the table.
func (db *DB) HandCreate(tableSerial, tourneySerial int64) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO hands (table_serial, tourney_serial) VALUES (?, ?)
	`, tableSerial, tourneySerial)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// HandSave stores the compressed history blob for a hand.
func (db *DB) HandSave(handSerial int64, description string) error {
	_, err := db.Exec(`
		UPDATE hands SET description = ? WHERE serial = ?
	`, description, handSerial)
	return err
}

// HandLoad returns the compressed history blob for a hand.
func (db *DB) HandLoad(handSerial int64) (string, error) {
	var description string
	err := db.QueryRow(`
		SELECT description FROM hands WHERE serial = ?
	`, handSerial).Scan(&description)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("hand not found")
	}
	return description, err
}

// TableStatsSet records the current observer and waiting counts.
func (db *DB) TableStatsSet(tableSerial int64, observers, waiting int) error {
	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO table_stats (table_serial, observers, waiting, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(table_serial) DO UPDATE SET observers = ?, waiting = ?, updated_at = ?
	`, tableSerial, observers, waiting, now, observers, waiting, now)
	return err
}

// MonitorInsert records a monitoring event.
func (db *DB) MonitorInsert(event, param1, param2, param3 int64) error {
	_, err := db.Exec(`
		INSERT INTO monitor (event, param1, param2, param3) VALUES (?, ?, ?, ?)
	`, event, param1, param2, param3)
	return err
}

// ChatInsert archives a chat line.
func (db *DB) ChatInsert(userSerial, tableSerial int64, message string) error {
	_, err := db.Exec(`
		INSERT INTO chat_archive (user_serial, table_serial, message) VALUES (?, ?, ?)
	`, userSerial, tableSerial, message)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
