// web/web.go
package web

import "embed"

// Files 页面模板与静态资源
//
//go:embed templates/*.html static/*
var Files embed.FS
