// atlas-loader 輸出 gorm 模型對應的 postgres DDL，供 atlas 產生遷移檔
//
//	atlas migrate diff --env gorm
package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"auctionhouse/models"
)

func main() {
	stmts, err := gormschema.New("postgres").Load(
		&models.AuctionLedger{},
		&models.Bid{},
		&models.AuctionEvent{},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}
	if _, err := io.WriteString(os.Stdout, stmts); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}
