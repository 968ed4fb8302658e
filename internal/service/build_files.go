package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"

	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/security"
)

var errNotDataURI = errors.New("attachment is not a data uri")

// decodeDataURI returns the payload of a data: URI. Both base64 and percent-encoded
// payloads are accepted.
func decodeDataURI(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, "data:") {
		return nil, errNotDataURI
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data uri")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return data, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return []byte(decoded), nil
}

// attachmentFileName keeps the attachment name when its extension can be published and
// otherwise derives one from the sniffed content type.
func attachmentFileName(name string, data []byte) (string, bool) {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	if security.AllowedExtension(name) {
		return name, true
	}
	detected := mimetype.Detect(data)
	candidate := strings.TrimSuffix(name, path.Ext(name)) + detected.Extension()
	if security.AllowedExtension(candidate) {
		return candidate, true
	}
	return name, false
}

func decodeAttachments(attachments []models.Attachment) (map[string][]byte, []string) {
	files := make(map[string][]byte, len(attachments))
	var skipped []string
	for _, attachment := range attachments {
		data, err := decodeDataURI(attachment.URL)
		if err != nil {
			skipped = append(skipped, attachment.Name)
			continue
		}
		name, ok := attachmentFileName(attachment.Name, data)
		if !ok {
			skipped = append(skipped, attachment.Name)
			continue
		}
		files[name] = data
	}
	return files, skipped
}

func repositoryName(task, email string) string {
	return fmt.Sprintf("%s-%s", task, shortDigest(email, 8))
}

func mitLicense(now time.Time, holder string) string {
	return fmt.Sprintf(`MIT License

Copyright (c) %d %s

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`, now.Year(), holder)
}

func projectTitle(task string) string {
	words := strings.FieldsFunc(task, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func readmeFor(task, brief, repoName string, attachments []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", projectTitle(task))
	b.WriteString("## Summary\n\nThis application was generated from the following brief:\n\n")
	for _, line := range strings.Split(strings.TrimSpace(brief), "\n") {
		fmt.Fprintf(&b, "> %s\n", line)
	}
	b.WriteString("\n## Setup\n\nClone the repository and serve the folder with any static file server:\n\n")
	fmt.Fprintf(&b, "```bash\ngit clone <repository-url> %s\ncd %s\npython -m http.server 8000\n```\n\n", repoName, repoName)
	b.WriteString("## Usage\n\nOpen `index.html` in a browser, or visit the GitHub Pages deployment of this repository. ")
	b.WriteString("Query parameters described in the brief are read on page load.\n\n")
	if len(attachments) > 0 {
		b.WriteString("## Files\n\n")
		for _, name := range attachments {
			fmt.Fprintf(&b, "- `%s`\n", name)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Code Explanation\n\n")
	b.WriteString("- `index.html` holds the markup, styles and script in a single file.\n")
	b.WriteString("- Errors are caught and reported in the page instead of failing silently.\n\n")
	b.WriteString("## License\n\nThis project is licensed under the MIT License. See [LICENSE](LICENSE).\n")
	return b.String()
}

var briefPolicy = bluemonday.StrictPolicy()

// fallbackPage renders a static page describing the brief when no generator is available.
func fallbackPage(task, brief string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
    .container { background: #fff; padding: 30px; border-radius: 10px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
    .brief { background: #e9f7ef; padding: 15px; border-left: 4px solid #27ae60; margin: 20px 0; }
  </style>
</head>
<body>
  <div class="container">
    <h1>%s</h1>
    <div class="brief">
      <h3>Project Brief</h3>
      <p>%s</p>
    </div>
    <div id="output"></div>
  </div>
  <script>
    // Echo query parameters so the page reflects what it was opened with.
    try {
      const params = new URLSearchParams(window.location.search);
      const out = document.getElementById('output');
      params.forEach((value, key) => {
        const p = document.createElement('p');
        p.textContent = key + ': ' + value;
        out.appendChild(p);
      });
    } catch (error) {
      console.error('failed to read parameters', error);
    }
  </script>
</body>
</html>
`, briefPolicy.Sanitize(projectTitle(task)), briefPolicy.Sanitize(projectTitle(task)), briefPolicy.Sanitize(brief))
}
