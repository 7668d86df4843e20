/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ui provides the interactive parts of the command line interface
package ui

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/dnote/readlater/pkg/cli/log"
	"github.com/pkg/errors"
)

// Confirm prompts for user input to confirm a choice. When optimistic, an
// empty answer confirms.
func Confirm(question string, optimistic bool) (bool, error) {
	return confirm(os.Stdin, question, optimistic)
}

func confirm(r io.Reader, question string, optimistic bool) (bool, error) {
	choices := "(y/N)"
	if optimistic {
		choices = "(Y/n)"
	}
	log.Askf("%s %s", question, choices)

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return false, errors.Wrap(err, "reading user input")
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true, nil
	case "":
		return optimistic, nil
	}

	return false, nil
}
