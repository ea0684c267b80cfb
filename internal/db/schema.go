package db

const schema = `
CREATE TABLE IF NOT EXISTS quizzes (
    id            UUID PRIMARY KEY,
    user_id       TEXT NOT NULL,
    title         TEXT NOT NULL,
    is_public     BOOLEAN NOT NULL DEFAULT TRUE,
    difficulty    TEXT NOT NULL DEFAULT 'medium',
    language      TEXT NOT NULL DEFAULT 'English',
    categories    TEXT[] NOT NULL DEFAULT '{}',
    questions     JSONB NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_modified TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS quizzes_user_id_idx ON quizzes (user_id);
CREATE INDEX IF NOT EXISTS quizzes_categories_idx ON quizzes USING GIN (categories);

CREATE TABLE IF NOT EXISTS documents (
    id         UUID PRIMARY KEY,
    user_id    TEXT NOT NULL,
    is_public  BOOLEAN NOT NULL DEFAULT TRUE,
    filename   TEXT NOT NULL,
    extension  TEXT NOT NULL,
    file_url   TEXT NOT NULL,
    size       BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_user_id_idx ON documents (user_id);

CREATE TABLE IF NOT EXISTS results (
    id             UUID PRIMARY KEY,
    quiz_id        UUID NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
    user_id        TEXT NOT NULL,
    num_unfinished INTEGER NOT NULL,
    num_correct    INTEGER NOT NULL DEFAULT 0,
    num_incorrect  INTEGER NOT NULL DEFAULT 0,
    status         INTEGER[] NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_modified  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (quiz_id, user_id)
);
CREATE INDEX IF NOT EXISTS results_user_id_idx ON results (user_id);

CREATE TABLE IF NOT EXISTS quotas (
    user_id       TEXT PRIMARY KEY,
    total_quizzes INTEGER NOT NULL DEFAULT 0,
    total_storage BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_updated  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS constants (
    key   TEXT PRIMARY KEY,
    value BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
    name TEXT PRIMARY KEY
);
`
