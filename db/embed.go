// Package db 内嵌数据库迁移脚本
package db

import "embed"

// Migrations 按 NNNN_name_up.sql 命名的向上迁移
//
//go:embed migrations/*.sql
var Migrations embed.FS
