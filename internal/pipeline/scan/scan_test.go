package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguage(t *testing.T) {
	assert.Equal(t, "python", Language("src/app.py"))
	assert.Equal(t, "go", Language("main.go"))
	assert.Equal(t, "typescript", Language("web/App.tsx"))
	assert.Equal(t, "markdown", Language("README.md"))
	assert.Equal(t, "yaml", Language("conf.yml"))
	assert.Equal(t, "", Language("Makefile"))
	assert.Equal(t, "", Language("data.unknownext"))
}

func TestShouldSkip(t *testing.T) {
	skip := []string{"logo.png", "bundle.ZIP", "report.pdf", "video.mp4", "lib.so", "font.woff2", "yarn.lock", "debug.log"}
	for _, p := range skip {
		assert.True(t, ShouldSkip(p), "should skip %s", p)
	}

	keep := []string{"main.py", "app.go", "notes.txt", "schema.sql"}
	for _, p := range keep {
		assert.False(t, ShouldSkip(p), "should keep %s", p)
	}
}

func TestCountCodeLines(t *testing.T) {
	assert.Equal(t, 0, CountCodeLines(""))
	assert.Equal(t, 1, CountCodeLines("print('x')"))
	assert.Equal(t, 2, CountCodeLines("a = 1\n\n\nb = 2\n"))
	assert.Equal(t, 3, CountCodeLines("x\n  \ty\n\nz"))
}

func TestExtractDependencies_Python(t *testing.T) {
	content := "import os\nimport sys, json\nfrom collections import OrderedDict\nfrom . import local\n"

	deps := ExtractDependencies(content, "python")

	assert.Contains(t, deps, "os")
	assert.Contains(t, deps, "sys")
	assert.Contains(t, deps, "json")
	assert.Contains(t, deps, "collections")
	assert.NotContains(t, deps, ".")
}

func TestExtractDependencies_JavaScript(t *testing.T) {
	content := `import React from 'react'
import { useState } from "react"
const lodash = require('lodash')
import util from './util'
`

	deps := ExtractDependencies(content, "javascript")

	assert.Contains(t, deps, "react")
	assert.Contains(t, deps, "lodash")
	// 相对导入不算外部依赖
	assert.NotContains(t, deps, "./util")
}

func TestExtractDependencies_Go(t *testing.T) {
	content := `package main

import (
	"fmt"
	"github.com/gin-gonic/gin"
)

import "os"
`

	deps := ExtractDependencies(content, "go")

	assert.Contains(t, deps, "fmt")
	assert.Contains(t, deps, "github.com/gin-gonic/gin")
	assert.Contains(t, deps, "os")
}

func TestExtractDependencies_Deduplicates(t *testing.T) {
	content := "import os\nimport os\nimport os\n"

	deps := ExtractDependencies(content, "python")

	assert.Equal(t, []string{"os"}, deps)
}

func TestExtractDependencies_UnknownLanguage(t *testing.T) {
	assert.Empty(t, ExtractDependencies("whatever", "brainfuck"))
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	write("main.py", "print('x')\n")
	write("src/util.go", "package util\n")
	write("assets/logo.png", "binary")
	write(".git/config", "[core]\n")

	files, err := Walk(root)
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.RelPath)
	}

	assert.ElementsMatch(t, []string{"main.py", "src/util.go"}, paths)
}

func TestWalk_EmptyDir(t *testing.T) {
	files, err := Walk(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestModuleCount(t *testing.T) {
	paths := []string{
		"README.md",
		"src/a.py",
		"src/b.py",
		"tests/test_a.py",
		"docs/index.md",
	}

	// 顶层文件不算模块，只数顶层目录
	assert.Equal(t, 3, ModuleCount(paths))
	assert.Equal(t, 0, ModuleCount([]string{"a.py", "b.py"}))
	assert.Equal(t, 0, ModuleCount(nil))
}
