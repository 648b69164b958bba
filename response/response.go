// Copyright 2024 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package response expands "@file" command line arguments into the arguments
// listed in file, using Ninja's response file quoting.
package response

import (
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Expand replaces every argument of the form @path with the arguments read
// from path. Arguments read from a response file are not expanded again.
func Expand(args []string) ([]string, error) {
	var ret []string
	for _, arg := range args {
		path, ok := strings.CutPrefix(arg, "@")
		if !ok || path == "" {
			ret = append(ret, arg)
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading response file: %w", err)
		}
		ret = append(ret, Split(string(data))...)
	}
	return ret, nil
}

// Split splits s into whitespace separated words. Single quotes preserve
// everything up to the closing quote; inside double quotes a backslash only
// escapes '"' and '\'.
func Split(s string) []string {
	var (
		words   []string
		word    strings.Builder
		quote   rune
		escaped bool
	)
	for _, c := range s {
		if escaped {
			if quote == '"' && c != '"' && c != '\\' {
				word.WriteRune('\\')
			}
			word.WriteRune(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				word.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
		case unicode.IsSpace(c):
			if word.Len() > 0 {
				words = append(words, word.String())
			}
			word.Reset()
		default:
			word.WriteRune(c)
		}
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	return words
}
