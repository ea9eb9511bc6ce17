// SPDX-License-Identifier: MIT

package wikidata

import (
	"bufio"
	"io"
	"slices"
	"strings"
	"testing"
)

func TestSQLReader(t *testing.T) {
	const dump = "" +
		"-- MySQL dump 10.19\n" +
		"DROP TABLE IF EXISTS `sites`;\n" +
		"CREATE TABLE `sites` (\n" +
		"  `site_id` int(10) unsigned NOT NULL,\n" +
		"  `site_global_key` varbinary(32) NOT NULL,\n" +
		"  `site_domain` varbinary(255) NOT NULL\n" +
		") ENGINE=InnoDB;\n" +
		"INSERT INTO `sites` VALUES (1,'wikidatawiki','org.wikidata.www.'),(2,'enwiki','org.wikipedia.en.www.');\n"

	reader, err := NewSQLReader(strings.NewReader(dump))
	if err != nil {
		t.Fatal(err)
	}

	gotCol := reader.Columns()
	wantCol := []string{"site_id", "site_global_key", "site_domain"}
	if !slices.Equal(gotCol, wantCol) {
		t.Errorf("got %v, want %v", gotCol, wantCol)
	}

	got := make([]string, 0, 2)
	for {
		row, err := reader.Read()
		if row == nil {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, strings.Join(row, "|"))
	}
	want := []string{
		"1|wikidatawiki|org.wikidata.www.",
		"2|enwiki|org.wikipedia.en.www.",
	}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSQLLexer(t *testing.T) {
	for _, tc := range []struct{ input, want string }{
		{"", ""},
		{" ", ""},
		{"✱", "Unexpected[✱]"},
		{"-- MySQL dump 10.19\n", "Comment[MySQL dump 10.19]"},
		{" ABC\nNULL ", "Word[ABC] Word[NULL]"},
		{"DROP TABLE `sites`;", "Word[DROP] Word[TABLE] Name[sites] Semicolon"},
		{"-", "Minus"},
		{"-A", "Minus Word[A]"},
		{"- A", "Minus Word[A]"},
		{"42", "Number[42]"},
		{"0.1", "Number[0.1]"},
		{".7, -42, 1.8", "Number[.7] Comma Number[-42] Comma Number[1.8]"},
		{"- 42", "Minus Number[42]"},
		{"int(10)", "Word[int] LeftParen Number[10] RightParen"},
		{"'foo'", "Text[foo]"},
		{"/", "Slash"},
		{"2/3", "Number[2] Slash Number[3]"},
		{"/* foo */", "Comment[foo]"},
	} {
		if got := lex(tc.input); got != tc.want {
			t.Errorf("input %v: got %v, want %v", tc.input, got, tc.want)
		}
	}
}

func lex(s string) string {
	lexer := sqlLexer{reader: bufio.NewReader(strings.NewReader(s))}
	var buf strings.Builder
	for {
		token, txt, err := lexer.read()
		if err == io.EOF {
			return buf.String()
		} else if err != nil {
			return err.Error()
		}
		if buf.Len() > 0 {
			buf.WriteRune(' ')
		}
		switch token {
		case unexpected:
			buf.WriteString("Unexpected")
		case word:
			buf.WriteString("Word")
		case name:
			buf.WriteString("Name")
		case number:
			buf.WriteString("Number")
		case text:
			buf.WriteString("Text")
		case comment:
			buf.WriteString("Comment")
		case leftParen:
			buf.WriteString("LeftParen")
		case rightParen:
			buf.WriteString("RightParen")
		case comma:
			buf.WriteString("Comma")
		case semicolon:
			buf.WriteString("Semicolon")
		case minus:
			buf.WriteString("Minus")
		case slash:
			buf.WriteString("Slash")
		default:
			buf.WriteString("?")
		}

		if txt != "" {
			buf.WriteRune('[')
			buf.WriteString(txt)
			buf.WriteRune(']')
		}
	}
}
