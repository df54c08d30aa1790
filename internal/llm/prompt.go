/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package llm

import "strings"

// NoContext stands in for an empty retrieval block
const NoContext = "No prior context."

// Turn is one completed exchange in the rolling history
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// BuildChatPrompt lays out the system sentence, retrieved memory, history and
// the new user line, ending with an open "Assistant:" for completion models.
func BuildChatPrompt(system string, history []Turn, docs []string, userText string) string {
	contextBlock := NoContext
	if len(docs) > 0 {
		contextBlock = strings.Join(docs, "\n---\n")
	}

	historyLines := make([]string, 0, len(history)*2)
	for _, turn := range history {
		historyLines = append(historyLines, "User: "+turn.User, "Assistant: "+turn.Assistant)
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString("Retrieved memory snippets:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\n")
	b.WriteString("Conversation so far:\n")
	b.WriteString(strings.Join(historyLines, "\n"))
	b.WriteString("\n\n")
	b.WriteString("User: ")
	b.WriteString(userText)
	b.WriteString("\nAssistant:")
	return b.String()
}

// BuildDetectionPrompt asks for a short spoken description of labels
func BuildDetectionPrompt(labels []string) string {
	return "You are summarizing visual detections for a user. " +
		"Describe the scene in one or two sentences, mentioning each object.\n" +
		"Detected labels: " + strings.Join(labels, ", ")
}
