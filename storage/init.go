package storage

func init() {
	RegisterAdapter(isSQLDB, newSQLAdapter)
	RegisterAdapter(isSQLXDB, newSQLXAdapter)

	// engines
	RegisterEngine("sqlite", "SELECT sqlite_version()", negotiateSQLite)
	RegisterEngine("postgres", "SHOW server_version", negotiatePostgres)
	RegisterEngine("mysql", "SELECT VERSION()", negotiateMySQL)
	RegisterEngine("sqlserver",
		"SELECT CAST(SERVERPROPERTY('productversion') AS varchar(128))",
		negotiateSQLServer)
	RegisterEngine("firebird",
		"SELECT rdb$get_context('SYSTEM', 'ENGINE_VERSION') FROM rdb$database",
		negotiateFirebird)
}
