package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	redirectDirective = "//go:redirect-from"
	redirectSection   = ".goredirectstbl"
)

type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

// findRedirects scans the non-test Go files below moduleDir/srcDir for
// annotated functions. Targets are named the way the linker names them,
// for instance abos/kernel/kfmt.Panic.
func findRedirects(modulePath, moduleDir, srcDir string) ([]*redirect, error) {
	var redirects []*redirect

	root := filepath.Join(moduleDir, srcDir)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, err := filepath.Rel(moduleDir, filepath.Dir(path))
		if err != nil {
			return err
		}
		pkgPath := modulePath + "/" + filepath.ToSlash(rel)

		found, err := fileRedirects(path, pkgPath)
		if err != nil {
			return err
		}
		redirects = append(redirects, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return redirects, nil
}

func fileRedirects(path, pkgPath string) ([]*redirect, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var redirects []*redirect
	for _, decl := range f.Decls {
		fnDecl, ok := decl.(*ast.FuncDecl)
		if !ok || fnDecl.Doc == nil || fnDecl.Recv != nil {
			continue
		}

		for _, comment := range fnDecl.Doc.List {
			if !strings.HasPrefix(comment.Text, redirectDirective) {
				continue
			}

			dst := pkgPath + "." + fnDecl.Name.Name
			fields := strings.Fields(comment.Text)
			if len(fields) != 2 || fields[0] != redirectDirective {
				return nil, fmt.Errorf("%s: malformed %s syntax for %q", fset.Position(comment.Pos()), redirectDirective, dst)
			}

			logger.WithFields(logrus.Fields{"src": fields[1], "dst": dst}).Debug("found redirect")
			redirects = append(redirects, &redirect{src: fields[1], dst: dst})
		}
	}

	return redirects, nil
}

// resolveSymbols looks up the address of each redirect source and target in
// the symbol table of imgFile.
func resolveSymbols(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	addrs := make(map[string]uint64, len(symbols))
	for _, sym := range symbols {
		addrs[sym.Name] = sym.Value
	}

	for _, r := range redirects {
		r.srcVMA, r.dstVMA = addrs[r.src], addrs[r.dst]
		switch {
		case r.srcVMA == 0:
			return fmt.Errorf("%s: could not locate address of %q", imgFile, r.src)
		case r.dstVMA == 0:
			return fmt.Errorf("%s: could not locate address of %q", imgFile, r.dst)
		}
	}

	return nil
}

// encodeTable returns the (source, target) address pairs as little endian
// 64-bit words.
func encodeTable(redirects []*redirect) []byte {
	var buf bytes.Buffer
	for _, r := range redirects {
		binary.Write(&buf, binary.LittleEndian, r.srcVMA)
		binary.Write(&buf, binary.LittleEndian, r.dstVMA)
	}
	return buf.Bytes()
}

// writeTable stores the redirect table in the reserved section of imgFile.
func writeTable(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	section := f.Section(redirectSection)
	f.Close()

	if section == nil {
		return fmt.Errorf("%s: missing %s section", imgFile, redirectSection)
	}

	table := encodeTable(redirects)
	if uint64(len(table)) > section.Size {
		return fmt.Errorf("%s: %d byte redirect table does not fit in %d byte %s section", imgFile, len(table), section.Size, redirectSection)
	}

	img, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	if _, err = img.WriteAt(table, int64(section.Offset)); err != nil {
		img.Close()
		return err
	}

	logger.WithField("count", len(redirects)).Info("populated redirect table")
	return img.Close()
}
